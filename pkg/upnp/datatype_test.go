package upnp

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parseElement decodes the single element in doc with dt.
func parseElement(t *testing.T, dt DataType, doc string, forceSimple bool) any {
	t.Helper()
	dec := xml.NewDecoder(strings.NewReader(doc))
	for {
		tok, err := dec.Token()
		require.NoError(t, err)
		if start, ok := tok.(xml.StartElement); ok {
			v, err := dt.SoapParse(dec, start, forceSimple)
			require.NoError(t, err)
			return v
		}
	}
}

func TestSimpleDataTypes(t *testing.T) {
	id := uuid.MustParse("8a4b3f34-36e1-4c0e-9a0e-3f3d3c5a2c11")
	tests := []struct {
		dt    *SimpleDataType
		value any
		text  string
	}{
		{DataTypeString, "a < b & c", "a &lt; b &amp; c"},
		{DataTypeBoolean, true, "1"},
		{DataTypeUI1, uint8(7), "7"},
		{DataTypeUI2, uint16(65535), "65535"},
		{DataTypeUI4, uint32(42), "42"},
		{DataTypeUI8, uint64(1 << 40), "1099511627776"},
		{DataTypeI1, int8(-3), "-3"},
		{DataTypeI2, int16(-300), "-300"},
		{DataTypeI4, int32(-70000), "-70000"},
		{DataTypeI8, int64(-1 << 40), "-1099511627776"},
		{DataTypeInt, int64(12), "12"},
		{DataTypeUUID, id, id.String()},
		{DataTypeBinBase64, []byte("hi"), "aGk="},
	}
	for _, tt := range tests {
		t.Run(tt.dt.Name(), func(t *testing.T) {
			for _, forceSimple := range []bool{true, false} {
				s, err := tt.dt.SoapSerialize(tt.value, forceSimple)
				require.NoError(t, err)
				assert.Equal(t, tt.text, s)

				v := parseElement(t, tt.dt, "<V>"+s+"</V>", forceSimple)
				assert.Equal(t, tt.value, v)
			}
		})
	}
}

func TestSimpleDataTypeWrongValue(t *testing.T) {
	_, err := DataTypeUI4.SoapSerialize("42", false)
	require.ErrorIs(t, err, ErrValueType)

	_, err = DataTypeUI4.FromString("-1")
	require.Error(t, err)
}

func TestSimpleDataTypeByName(t *testing.T) {
	dt, ok := SimpleDataTypeByName(" ui4 ")
	require.True(t, ok)
	assert.Same(t, DataTypeUI4, dt)

	_, ok = SimpleDataTypeByName("struct")
	assert.False(t, ok)
}

type mediaItem struct {
	XMLName xml.Name `xml:"Item"`
	ID      string   `xml:"id,attr"`
	Title   string   `xml:"Title"`
}

func TestExtendedDataType(t *testing.T) {
	dt := NewExtendedDataType("MediaItem", func() any { return new(mediaItem) })
	item := &mediaItem{ID: "7", Title: "Tom & Jerry"}

	nested, err := dt.SoapSerialize(item, false)
	require.NoError(t, err)
	assert.Equal(t, `<Item id="7"><Title>Tom &amp; Jerry</Title></Item>`, nested)

	simple, err := dt.SoapSerialize(item, true)
	require.NoError(t, err)
	assert.Equal(t, `&lt;Item id=&#34;7&#34;&gt;&lt;Title&gt;Tom &amp;amp; Jerry&lt;/Title&gt;&lt;/Item&gt;`, simple)

	v := parseElement(t, dt, "<V>"+nested+"</V>", false)
	assert.Equal(t, "Tom & Jerry", v.(*mediaItem).Title)

	v = parseElement(t, dt, "<V>"+simple+"</V>", true)
	assert.Equal(t, "7", v.(*mediaItem).ID)
	assert.Equal(t, "Tom & Jerry", v.(*mediaItem).Title)
}
