package types

import "strconv"

// ID represents a generic identifier, as a 64-bit unsigned integer
// formatted in base-16 everywhere it is printed or parsed.
type ID uint64

func (i ID) String() string {
	return strconv.FormatUint(uint64(i), 16)
}

// IDFromString parses a string to ID, in base-16.
func IDFromString(s string) (ID, error) {
	i, err := strconv.ParseUint(s, 16, 64)
	return ID(i), err
}

// IDSlice implements sort interface.
type IDSlice []ID

func (s IDSlice) Len() int           { return len(s) }
func (s IDSlice) Less(i, j int) bool { return uint64(s[i]) < uint64(s[j]) }
func (s IDSlice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
