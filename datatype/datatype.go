// Package datatype defines the RTC timed data types exchanged through data ports.
package datatype

import (
	"fmt"
	"time"

	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/cdr"
)

// Typed is implemented by data types that carry an IDL repository id
type Typed interface {
	RepositoryID() string
}

// TypeName returns the repository id of v, or its Go type name.
func TypeName(v any) string {
	if t, ok := v.(Typed); ok {
		return t.RepositoryID()
	}
	return fmt.Sprintf("%T", v)
}

// Time is the RTC::Time timestamp
type Time struct {
	Sec  uint32
	Nsec uint32
}

// Now returns the current time
func Now() Time {
	return FromTime(time.Now())
}

// FromTime converts a time.Time
func FromTime(t time.Time) Time {
	return Time{Sec: uint32(t.Unix()), Nsec: uint32(t.Nanosecond())}
}

// Time converts to a time.Time
func (t Time) Time() time.Time {
	return time.Unix(int64(t.Sec), int64(t.Nsec))
}

// MarshalCDR implements cdr.Marshaler
func (t Time) MarshalCDR(e *cdr.Encoder) {
	e.WriteULong(t.Sec)
	e.WriteULong(t.Nsec)
}

// UnmarshalCDR implements cdr.Unmarshaler
func (t *Time) UnmarshalCDR(d *cdr.Decoder) {
	t.Sec = d.ReadULong()
	t.Nsec = d.ReadULong()
}

// TimedLong is RTC::TimedLong
type TimedLong struct {
	Tm   Time
	Data int32
}

func (TimedLong) RepositoryID() string { return "IDL:RTC/TimedLong:1.0" }

func (v TimedLong) MarshalCDR(e *cdr.Encoder) {
	v.Tm.MarshalCDR(e)
	e.WriteLong(v.Data)
}

func (v *TimedLong) UnmarshalCDR(d *cdr.Decoder) {
	v.Tm.UnmarshalCDR(d)
	v.Data = d.ReadLong()
}

// TimedFloat is RTC::TimedFloat
type TimedFloat struct {
	Tm   Time
	Data float32
}

func (TimedFloat) RepositoryID() string { return "IDL:RTC/TimedFloat:1.0" }

func (v TimedFloat) MarshalCDR(e *cdr.Encoder) {
	v.Tm.MarshalCDR(e)
	e.WriteFloat(v.Data)
}

func (v *TimedFloat) UnmarshalCDR(d *cdr.Decoder) {
	v.Tm.UnmarshalCDR(d)
	v.Data = d.ReadFloat()
}

// TimedDouble is RTC::TimedDouble
type TimedDouble struct {
	Tm   Time
	Data float64
}

func (TimedDouble) RepositoryID() string { return "IDL:RTC/TimedDouble:1.0" }

func (v TimedDouble) MarshalCDR(e *cdr.Encoder) {
	v.Tm.MarshalCDR(e)
	e.WriteDouble(v.Data)
}

func (v *TimedDouble) UnmarshalCDR(d *cdr.Decoder) {
	v.Tm.UnmarshalCDR(d)
	v.Data = d.ReadDouble()
}

// TimedString is RTC::TimedString
type TimedString struct {
	Tm   Time
	Data string
}

func (TimedString) RepositoryID() string { return "IDL:RTC/TimedString:1.0" }

func (v TimedString) MarshalCDR(e *cdr.Encoder) {
	v.Tm.MarshalCDR(e)
	e.WriteString(v.Data)
}

func (v *TimedString) UnmarshalCDR(d *cdr.Decoder) {
	v.Tm.UnmarshalCDR(d)
	v.Data = d.ReadString()
}

// TimedOctetSeq is RTC::TimedOctetSeq
type TimedOctetSeq struct {
	Tm   Time
	Data []byte
}

func (TimedOctetSeq) RepositoryID() string { return "IDL:RTC/TimedOctetSeq:1.0" }

func (v TimedOctetSeq) MarshalCDR(e *cdr.Encoder) {
	v.Tm.MarshalCDR(e)
	e.WriteOctetSeq(v.Data)
}

func (v *TimedOctetSeq) UnmarshalCDR(d *cdr.Decoder) {
	v.Tm.UnmarshalCDR(d)
	v.Data = d.ReadOctetSeq()
}

// TimedLongSeq is RTC::TimedLongSeq
type TimedLongSeq struct {
	Tm   Time
	Data []int32
}

func (TimedLongSeq) RepositoryID() string { return "IDL:RTC/TimedLongSeq:1.0" }

func (v TimedLongSeq) MarshalCDR(e *cdr.Encoder) {
	v.Tm.MarshalCDR(e)
	_ = cdr.Encode(e, v.Data)
}

func (v *TimedLongSeq) UnmarshalCDR(d *cdr.Decoder) {
	v.Tm.UnmarshalCDR(d)
	_ = cdr.Decode(d, &v.Data)
}

// TimedDoubleSeq is RTC::TimedDoubleSeq
type TimedDoubleSeq struct {
	Tm   Time
	Data []float64
}

func (TimedDoubleSeq) RepositoryID() string { return "IDL:RTC/TimedDoubleSeq:1.0" }

func (v TimedDoubleSeq) MarshalCDR(e *cdr.Encoder) {
	v.Tm.MarshalCDR(e)
	_ = cdr.Encode(e, v.Data)
}

func (v *TimedDoubleSeq) UnmarshalCDR(d *cdr.Decoder) {
	v.Tm.UnmarshalCDR(d)
	_ = cdr.Decode(d, &v.Data)
}
