package serializer

import (
	"strings"

	"github.com/OpenRTM/RTM-Tutorial-sub001/pkg/cdr"
)

// ROS2Prefix prefixes the marshaling types of the ROS2 codecs
const ROS2Prefix = "ros2:"

// ROS2 encodes one std_msgs message as encapsulated CDR, the representation
// DDS based ROS2 middleware puts on the wire.
type ROS2 struct {
	endianState
	msg stdMsg
}

// Serialize writes the encapsulation header followed by the CDR body
func (c *ROS2) Serialize(data any) (out []byte, st Status) {
	if !c.ready() {
		return nil, StatusNotSupportEndian
	}
	st = guard(func() Status {
		enc, err := cdr.NewEncoder(c.endian)
		if err != nil {
			return StatusNotSupportEndian
		}
		defer enc.Release()

		enc.Encapsulate()
		if !c.msg.encode(enc, data) {
			return StatusError
		}
		out = enc.Bytes()
		return StatusOK
	})
	return out, st
}

// Deserialize reads the byte order from the encapsulation header
func (c *ROS2) Deserialize(b []byte, out any) Status {
	if !c.ready() {
		return StatusNotSupportEndian
	}
	return guard(func() Status {
		dec, err := cdr.NewEncapsulatedDecoder(b)
		if err != nil {
			return StatusError
		}
		if !c.msg.decode(dec, out) {
			return StatusError
		}
		return StatusOK
	})
}

// ros2TypeName converts "std_msgs/Int32" to the DDS type "std_msgs::msg::dds_::Int32_"
func ros2TypeName(name string) string {
	pkg, typ, ok := strings.Cut(name, "/")
	if !ok {
		return name
	}
	return pkg + "::msg::dds_::" + typ + "_"
}

// RegisterROS2 adds a "ros2:std_msgs/<T>" codec and message info for every
// supported std_msgs type.
func RegisterROS2(r *Registry) {
	for _, m := range stdMsgs {
		msg := m
		name := ROS2Prefix + msg.name
		r.AddSerializer(name, func() Serializer { return &ROS2{msg: msg} }, msg.dataType)
		r.ROS2Info.Add(name, MessageInfo{DataType: ros2TypeName(msg.name), Definition: msg.def})
	}
}
