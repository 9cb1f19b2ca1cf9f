package helpers

import (
	// Go Internal Packages
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
)

// PrintStruct prints v to stdout as indented JSON.
func PrintStruct(v any) {
	_ = FprintStruct(os.Stdout, v)
}

func FprintStruct(w io.Writer, v any) error {
	res, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(res))
	return err
}

// RedactURI masks the password of a connection string so it can be logged.
// Strings that do not parse as URLs are returned unchanged.
func RedactURI(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
