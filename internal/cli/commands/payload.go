package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/conduit-lang/nestwrite/internal/app"
	"github.com/spf13/cobra"
)

// payloadFlags selects where a command reads its JSON payload from
type payloadFlags struct {
	file   string
	inline string
}

func (p *payloadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&p.file, "data", "d", "", "payload file, - reads stdin")
	cmd.Flags().StringVar(&p.inline, "json", "", "inline payload")
	cmd.MarkFlagsMutuallyExclusive("data", "json")
}

// read decodes the payload. No payload is an empty object.
func (p *payloadFlags) read(cmd *cobra.Command) (map[string]interface{}, error) {
	var r io.Reader
	switch {
	case p.inline != "":
		r = strings.NewReader(p.inline)
	case p.file == "-":
		r = cmd.InOrStdin()
	case p.file != "":
		f, err := os.Open(p.file)
		if err != nil {
			return nil, fmt.Errorf("failed to open payload: %w", err)
		}
		defer f.Close()
		r = f
	default:
		return map[string]interface{}{}, nil
	}

	var data map[string]interface{}
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]interface{}{}, nil
		}
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	return data, nil
}

// withApp opens the app for one command and reports the error fn returns
func (o *globalOptions) withApp(cmd *cobra.Command, resource string, fn func(a *app.App) error) error {
	a, err := o.openApp(cmd.Context())
	if err != nil {
		return report(cmd.ErrOrStderr(), err, resource, nil, o.colorless())
	}
	defer a.Close()
	defer a.Logger.Sync() //nolint:errcheck

	if err := fn(a); err != nil {
		return report(cmd.ErrOrStderr(), err, resource, a.Schemas.List(), o.colorless())
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
