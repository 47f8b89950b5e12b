package scheduler

import (
	"encoding/hex"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint digests the ordered contents of a set. Equal sets share a fingerprint,
// so it doubles as an edit revision and an HTTP ETag.
func Fingerprint(set *AssignmentSet) string {
	h, _ := blake2b.New256(nil)
	for _, a := range set.All() {
		for _, field := range []string{a.ID, a.CourseID, a.FacultyID, a.RoomID, strconv.Itoa(a.Slot.Day), strconv.Itoa(a.Slot.Period), a.Notes} {
			_, _ = h.Write([]byte(strconv.Quote(field)))
		}
		_, _ = h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}
