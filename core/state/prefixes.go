package state

import "encoding/binary"

// Key layout for the escrow ledger KV store. Every record class gets its own
// prefix so backends without range queries can still address records directly.
const (
	accountPrefix   = "acct:"
	jobPrefix       = "job:"
	custodyPrefix   = "custody:"
	allowancePrefix = "allow:"
	jobCounterKey   = "job-counter"
	genesisFlagKey  = "genesis-applied"
)

func accountKey(addr []byte) []byte {
	return append([]byte(accountPrefix), addr...)
}

func jobKey(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return append([]byte(jobPrefix), buf...)
}

func custodyKey(method string) []byte {
	return append([]byte(custodyPrefix), method...)
}

func allowanceKey(owner []byte) []byte {
	return append([]byte(allowancePrefix), owner...)
}
