package postgres

const queryInsertEvent = `
	INSERT INTO ledger_events (aggregate_id, seq, kind, owner, amount, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6)
`

const queryNextSeq = `
	SELECT COALESCE(MAX(seq) + 1, 0)
	FROM ledger_events
	WHERE aggregate_id = $1
`

const queryLoadEvents = `
	SELECT aggregate_id, seq, kind, owner, amount, occurred_at
	FROM ledger_events
	WHERE aggregate_id = $1
	ORDER BY seq ASC
`

const queryLoadAllEvents = `
	SELECT aggregate_id, seq, kind, owner, amount, occurred_at
	FROM ledger_events
	ORDER BY aggregate_id ASC, seq ASC
`

const queryAggregateIDs = `
	SELECT DISTINCT aggregate_id
	FROM ledger_events
	ORDER BY aggregate_id ASC
`
