// Package channel carries the long-lived JSON-framed sessions between the
// validator and its storage agents: registration, proof request/response
// correlation, heartbeats and disconnect cleanup.
package channel

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Frame type discriminators. The mixed naming is part of the wire protocol
// agents already speak; do not normalize it.
const (
	TypeRegister     = "register"
	TypeRegistered   = "registered"
	TypeRequestProof = "RequestProof"
	TypeProofReply   = "ProofResponse"
	TypeSendCIDs     = "SendCIDS"
	TypePingPongPong = "PingPongPong"
)

// Challenge frame statuses.
const (
	StatusPending = "Pending"
	StatusSuccess = "Success"
	StatusFail    = "Fail"
)

// Application close codes sent when a session is rejected or displaced.
// 1001 (going away) and 1013 (try again later) keep their standard meanings.
const (
	CloseRegisterTimeout    = 4001
	CloseMissingFields      = 4002
	CloseInvalidUsername    = 4003
	CloseUnknownAccount     = 4004
	CloseReplaced           = 4005
	CloseRegistrationFailed = 4006
)

// envelope is the first-pass decode that reveals a frame's type.
type envelope struct {
	Type string `json:"type"`
}

// RegisterFrame is the first frame an agent must send on a new session.
type RegisterFrame struct {
	Type         string `json:"type"`
	PeerID       string `json:"peerId"`
	HiveUsername string `json:"hiveUsername"`
	Version      string `json:"version"`
}

// RegisteredFrame acknowledges a successful registration.
type RegisteredFrame struct {
	Type    string `json:"type"`
	NodeID  string `json:"nodeId"`
	Message string `json:"message"`
}

// RequestProofFrame asks an agent to prove access to one content ID. Hash
// carries the challenge salt.
type RequestProofFrame struct {
	Type   string `json:"type"`
	CID    string `json:"CID"`
	Hash   string `json:"Hash"`
	User   string `json:"User"`
	Status string `json:"Status"`
}

// NewRequestProof builds a dispatch-ready challenge frame.
func NewRequestProof(cid, salt, validatorAccount string) *RequestProofFrame {
	return &RequestProofFrame{
		Type:   TypeRequestProof,
		CID:    cid,
		Hash:   salt,
		User:   validatorAccount,
		Status: StatusPending,
	}
}

// ProofResponseFrame is an agent's answer to a RequestProof. Hash echoes the
// salt, which correlates the reply with its pending entry. Elapsed is the
// agent's self-reported timing, kept for diagnostics only; enforcement always
// uses the server-measured time.
type ProofResponseFrame struct {
	Type      string `json:"type"`
	CID       string `json:"CID"`
	Hash      string `json:"Hash"`
	Status    string `json:"Status"`
	ProofHash string `json:"proofHash,omitempty"`
	Elapsed   int64  `json:"elapsed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SendCIDsFrame is an informational inventory chunk: a json-encoded list of
// the agent's pinned content IDs, split across parts.
type SendCIDsFrame struct {
	Type       string `json:"type"`
	Pins       string `json:"pins"`
	Part       uint64 `json:"part"`
	TotalParts uint64 `json:"totalParts"`
}

// PingPongPongFrame is the application-level echo. The server answers an
// inbound frame by returning the same hash.
type PingPongPongFrame struct {
	Type string `json:"type"`
	Hash string `json:"Hash"`
}
