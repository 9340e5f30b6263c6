package kv

// The schema will define how to store and retrieve data from the db. We store
// entities as JSON under their natural key (agent ID, content ID, contract
// UUID) and maintain small index buckets for the scans the scheduler and the
// read APIs issue: contracts by content ID, challenges by agent, payout audit
// rows by account.
var (
	agentsBucket         = []byte("agents")
	agentBlacklistBucket = []byte("agent-blacklist")
	blobsBucket          = []byte("blobs")
	refsBucket           = []byte("refs")
	contractsBucket      = []byte("contracts")
	contractEventsBucket = []byte("contract-events")
	challengesBucket     = []byte("challenges")
	auditRecordsBucket   = []byte("audit-records")

	// Index buckets.
	contractCIDIndicesBucket    = []byte("contract-cid-indices")
	challengeAgentIndicesBucket = []byte("challenge-agent-indices")
	auditAccountIndicesBucket   = []byte("audit-account-indices")
)
