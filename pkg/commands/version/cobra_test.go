package version

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/matryer/is"

	"github.com/forestnode-io/upnpstack/pkg/output"
	"github.com/forestnode-io/upnpstack/pkg/version"
)

func TestWriteHuman(t *testing.T) {
	is := is.New(t)

	var buf bytes.Buffer
	is.NoErr(write(&buf, output.Format{}))
	is.True(bytes.HasPrefix(buf.Bytes(), []byte("version: "+version.Version+"\n")))
	is.True(bytes.Contains(buf.Bytes(), []byte("upnp: "+version.MachineInfo()+"\n")))
}

func TestWriteJSON(t *testing.T) {
	is := is.New(t)

	var buf bytes.Buffer
	is.NoErr(write(&buf, output.Format{Format: "json", Opts: []string{"compact"}}))
	is.Equal(bytes.Count(buf.Bytes(), []byte("\n")), 1)

	var payload map[string]string
	is.NoErr(json.Unmarshal(buf.Bytes(), &payload))
	is.Equal(payload["version"], version.Version)
	_, ok := payload["credit"]
	is.True(!ok)
}
