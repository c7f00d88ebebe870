package upnp

import (
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	gsoap "github.com/huin/goupnp/soap"
)

var (
	ErrValueType    = errors.New("value has wrong type")
	ErrInvalidValue = errors.New("invalid value")
)

// DataType serializes values of one UPnP data type to and from their SOAP
// representation. forceSimple is set when talking to UPnP 1.0 peers,
// which only understand plain string content.
type DataType interface {
	Name() string
	// SoapSerialize returns the element content for value, already
	// escaped for inclusion in an XML document.
	SoapSerialize(value any, forceSimple bool) (string, error)
	// SoapParse reads the content of start and consumes its end element.
	SoapParse(dec *xml.Decoder, start xml.StartElement, forceSimple bool) (any, error)
}

// SimpleDataType is one of the UPnP 1.0 data types, always carried as
// character data.
type SimpleDataType struct {
	name      string
	marshal   func(any) (string, error)
	unmarshal func(string) (any, error)
}

func simple[T any](name string, marshal func(T) (string, error), unmarshal func(string) (T, error)) *SimpleDataType {
	return &SimpleDataType{
		name: name,
		marshal: func(v any) (string, error) {
			t, ok := v.(T)
			if !ok {
				var zero T
				return "", fmt.Errorf("%w: %s expects %T, got %T", ErrValueType, name, zero, v)
			}
			return marshal(t)
		},
		unmarshal: func(s string) (any, error) {
			return unmarshal(s)
		},
	}
}

func (t *SimpleDataType) Name() string {
	return t.name
}

func (t *SimpleDataType) SoapSerialize(value any, _ bool) (string, error) {
	s, err := t.ToString(value)
	if err != nil {
		return "", err
	}
	return escapeText(s), nil
}

func (t *SimpleDataType) SoapParse(dec *xml.Decoder, start xml.StartElement, _ bool) (any, error) {
	var s string
	if err := dec.DecodeElement(&s, &start); err != nil {
		return nil, fmt.Errorf("error reading %s value: %w", t.name, err)
	}
	return t.FromString(s)
}

// ToString converts value to its textual UPnP representation.
func (t *SimpleDataType) ToString(value any) (string, error) {
	s, err := t.marshal(value)
	if err != nil {
		return "", fmt.Errorf("unable to serialize %s value: %w", t.name, err)
	}
	return s, nil
}

// FromString parses the textual UPnP representation of a value.
func (t *SimpleDataType) FromString(s string) (any, error) {
	v, err := t.unmarshal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to parse %s value %q: %v", ErrInvalidValue, t.name, s, err)
	}
	return v, nil
}

// ExtendedDataType carries an XML document as value. UPnP 1.1 peers get
// the document as nested elements, UPnP 1.0 peers get it as escaped
// character data.
type ExtendedDataType struct {
	name     string
	newValue func() any
}

// NewExtendedDataType returns an extended data type whose values are
// decoded into the pointer returned by newValue.
func NewExtendedDataType(name string, newValue func() any) *ExtendedDataType {
	return &ExtendedDataType{
		name:     name,
		newValue: newValue,
	}
}

func (t *ExtendedDataType) Name() string {
	return t.name
}

func (t *ExtendedDataType) SoapSerialize(value any, forceSimple bool) (string, error) {
	data, err := xml.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("unable to serialize %s value: %w", t.name, err)
	}
	if forceSimple {
		return escapeText(string(data)), nil
	}
	return string(data), nil
}

func (t *ExtendedDataType) SoapParse(dec *xml.Decoder, start xml.StartElement, forceSimple bool) (any, error) {
	var data string
	if forceSimple {
		if err := dec.DecodeElement(&data, &start); err != nil {
			return nil, fmt.Errorf("error reading %s value: %w", t.name, err)
		}
	} else {
		var inner struct {
			XML string `xml:",innerxml"`
		}
		if err := dec.DecodeElement(&inner, &start); err != nil {
			return nil, fmt.Errorf("error reading %s value: %w", t.name, err)
		}
		data = inner.XML
	}

	v := t.newValue()
	if err := xml.Unmarshal([]byte(data), v); err != nil {
		return nil, fmt.Errorf("%w: unable to parse %s value: %v", ErrInvalidValue, t.name, err)
	}
	return v, nil
}

var (
	DataTypeString      = simple("string", gsoap.MarshalString, gsoap.UnmarshalString)
	DataTypeChar        = simple("char", gsoap.MarshalChar, gsoap.UnmarshalChar)
	DataTypeBoolean     = simple("boolean", gsoap.MarshalBoolean, gsoap.UnmarshalBoolean)
	DataTypeUI1         = simple("ui1", gsoap.MarshalUi1, gsoap.UnmarshalUi1)
	DataTypeUI2         = simple("ui2", gsoap.MarshalUi2, gsoap.UnmarshalUi2)
	DataTypeUI4         = simple("ui4", gsoap.MarshalUi4, gsoap.UnmarshalUi4)
	DataTypeUI8         = simple("ui8", marshalUi8, unmarshalUi8)
	DataTypeI1          = simple("i1", gsoap.MarshalI1, gsoap.UnmarshalI1)
	DataTypeI2          = simple("i2", gsoap.MarshalI2, gsoap.UnmarshalI2)
	DataTypeI4          = simple("i4", gsoap.MarshalI4, gsoap.UnmarshalI4)
	DataTypeI8          = simple("i8", marshalI8, unmarshalI8)
	DataTypeInt         = simple("int", gsoap.MarshalInt, gsoap.UnmarshalInt)
	DataTypeR4          = simple("r4", gsoap.MarshalR4, gsoap.UnmarshalR4)
	DataTypeR8          = simple("r8", gsoap.MarshalR8, gsoap.UnmarshalR8)
	DataTypeNumber      = simple("number", gsoap.MarshalR8, gsoap.UnmarshalR8)
	DataTypeFloat       = simple("float", gsoap.MarshalR8, gsoap.UnmarshalR8)
	DataTypeFixed14_4   = simple("fixed.14.4", gsoap.MarshalFixed14_4, gsoap.UnmarshalFixed14_4)
	DataTypeBinBase64   = simple("bin.base64", gsoap.MarshalBinBase64, gsoap.UnmarshalBinBase64)
	DataTypeBinHex      = simple("bin.hex", gsoap.MarshalBinHex, gsoap.UnmarshalBinHex)
	DataTypeURI         = simple("uri", gsoap.MarshalURI, unmarshalURI)
	DataTypeUUID        = simple("uuid", marshalUUID, uuid.Parse)
	DataTypeDate        = simple("date", gsoap.MarshalDate, gsoap.UnmarshalDate)
	DataTypeDateTime    = simple("dateTime", gsoap.MarshalDateTime, gsoap.UnmarshalDateTime)
	DataTypeDateTimeTz  = simple("dateTime.tz", gsoap.MarshalDateTimeTz, gsoap.UnmarshalDateTimeTz)
	DataTypeTimeOfDay   = simple("time", gsoap.MarshalTimeOfDay, gsoap.UnmarshalTimeOfDay)
	DataTypeTimeOfDayTz = simple("time.tz", gsoap.MarshalTimeOfDayTz, gsoap.UnmarshalTimeOfDayTz)
)

var simpleDataTypes = map[string]*SimpleDataType{}

func init() {
	for _, dt := range []*SimpleDataType{
		DataTypeString, DataTypeChar, DataTypeBoolean,
		DataTypeUI1, DataTypeUI2, DataTypeUI4, DataTypeUI8,
		DataTypeI1, DataTypeI2, DataTypeI4, DataTypeI8, DataTypeInt,
		DataTypeR4, DataTypeR8, DataTypeNumber, DataTypeFloat, DataTypeFixed14_4,
		DataTypeBinBase64, DataTypeBinHex, DataTypeURI, DataTypeUUID,
		DataTypeDate, DataTypeDateTime, DataTypeDateTimeTz,
		DataTypeTimeOfDay, DataTypeTimeOfDayTz,
	} {
		simpleDataTypes[dt.name] = dt
	}
}

// SimpleDataTypeByName looks up a UPnP 1.0 data type by its SCPD name.
func SimpleDataTypeByName(name string) (*SimpleDataType, bool) {
	dt, ok := simpleDataTypes[strings.TrimSpace(name)]
	return dt, ok
}

// ui8 and i8 are UPnP 2.0 additions without a goupnp marshaller.
func marshalUi8(v uint64) (string, error) {
	return strconv.FormatUint(v, 10), nil
}

func unmarshalUi8(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func marshalI8(v int64) (string, error) {
	return strconv.FormatInt(v, 10), nil
}

func unmarshalI8(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func unmarshalURI(s string) (*url.URL, error) {
	return url.Parse(s)
}

func marshalUUID(v uuid.UUID) (string, error) {
	return v.String(), nil
}

func escapeText(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
