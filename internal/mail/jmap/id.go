package jmap

// principalAlphabet is Stalwart's internal base32 alphabet for turning a
// principal id into a JMAP account id: a-z for 0-25, then 7,9,2,0,1,3.
const principalAlphabet = "abcdefghijklmnopqrstuvwxyz792013"

// EncodePrincipalID returns the JMAP account id for a Stalwart principal id.
func EncodePrincipalID(id uint32) string {
	if id == 0 {
		return "a"
	}

	var buf [7]byte
	i := len(buf)
	for id > 0 {
		i--
		buf[i] = principalAlphabet[id%32]
		id /= 32
	}
	return string(buf[i:])
}
