package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// imageURL decodes image references that arrive either as a bare string or
// as an object carrying a URL (or url) field. Protocol-relative values are
// made absolute.
type imageURL string

func (u *imageURL) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*u = ""
		return nil
	}
	var s string
	switch {
	case len(b) > 0 && b[0] == '"':
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	case len(b) > 0 && b[0] == '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		raw, ok := obj["URL"]
		if !ok {
			raw, ok = obj["url"]
		}
		if ok {
			if err := json.Unmarshal(raw, &s); err != nil {
				return fmt.Errorf("catalog: image url: %w", err)
			}
		}
	default:
		return fmt.Errorf("catalog: cannot decode image from %s", b)
	}
	*u = imageURL(absolute(s))
	return nil
}

func absolute(s string) string {
	if strings.HasPrefix(s, "//") {
		return "https:" + s
	}
	return s
}
