package state

var (
	counterPrefix = []byte("counter/")
)

func counterKey(name string) []byte {
	buf := make([]byte, len(counterPrefix)+len(name))
	copy(buf, counterPrefix)
	copy(buf[len(counterPrefix):], name)
	return buf
}
