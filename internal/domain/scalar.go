package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Scalar is a string-valued field the extractor may emit as a JSON string, a JSON number
// or null. Period numbers and years arrive in all three shapes.
type Scalar string

func (s Scalar) String() string { return string(s) }

func (s Scalar) Empty() bool { return strings.TrimSpace(string(s)) == "" }

func (s *Scalar) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = Scalar(strings.TrimSpace(str))
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return fmt.Errorf("scalar: want string or number, got %s", string(b))
	}
	*s = Scalar(num.String())
	return nil
}

func (s Scalar) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}
