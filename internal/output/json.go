package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pranshuparmar/procfd/pkg/model"
)

// WriteJSON writes entries as one compact JSON array followed by a newline.
// An empty result is written as [].
func WriteJSON(w io.Writer, entries []model.FdEntry) error {
	if entries == nil {
		entries = []model.FdEntry{}
	}
	data, err := json.Marshal(Sorted(entries))
	if err != nil {
		return fmt.Errorf("error serializing json: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
