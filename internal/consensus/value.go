package consensus

import (
	"encoding/json"
	"strconv"
)

// Agents answer with either a categorical decision ("approve") or a numeric
// estimate (a price, an allocation). A closed two-variant value keeps the
// aggregation and conflict math honest instead of switching on `any`.

type ValueKind int

const (
	ValueString ValueKind = iota
	ValueNumber
)

type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
}

func StringValue(s string) Value {
	return Value{Kind: ValueString, Str: s}
}

func NumberValue(f float64) Value {
	return Value{Kind: ValueNumber, Num: f}
}

func (v Value) IsNumber() bool {
	return v.Kind == ValueNumber
}

// Key returns a grouping key that never collides across kinds:
// the string "1.5" and the number 1.5 are distinct votes.
func (v Value) Key() string {
	if v.Kind == ValueNumber {
		return "n:" + strconv.FormatFloat(v.Num, 'g', -1, 64)
	}
	return "s:" + v.Str
}

func (v Value) String() string {
	if v.Kind == ValueNumber {
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	}
	return v.Str
}

// ParseValue interprets a raw decision string, preferring the numeric form
// when the whole string parses as a number.
func ParseValue(s string) Value {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return NumberValue(f)
	}
	return StringValue(s)
}

// MarshalJSON renders the active variant as a bare JSON string or number.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Kind == ValueNumber {
		return json.Marshal(v.Num)
	}
	return json.Marshal(v.Str)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*v = NumberValue(num)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*v = StringValue(str)
	return nil
}
