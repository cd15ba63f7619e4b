package pubsub

import (
	"os"
	"strconv"
	"strings"

	"github.com/OpenRTM/RTM-Tutorial-sub001/dataport"
	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
	"github.com/OpenRTM/RTM-Tutorial-sub001/serializer"
)

// Flavor describes one pub/sub interface type
type Flavor struct {
	// Name is the interface type, e.g. "ros2"
	Name string
	// DefaultType is the marshaling type used when the profile names none
	DefaultType string
	// Stream is the JetStream stream backing reliable topics; empty when the
	// flavor has no reliable mode.
	Stream string

	// byDataType selects message info by dataport.data_type instead of the
	// marshaling type
	byDataType bool
	info       func(*serializer.Registry) *serializer.InfoRegistry
}

// Flavors registered by Register
var (
	ROS = Flavor{
		Name:        dataport.InterfaceROS,
		DefaultType: serializer.ROSPrefix + "std_msgs/Float32",
		info:        func(r *serializer.Registry) *serializer.InfoRegistry { return r.ROSInfo },
	}
	ROS2 = Flavor{
		Name:        dataport.InterfaceROS2,
		DefaultType: serializer.ROS2Prefix + "std_msgs/Float32",
		Stream:      "RTM_ROS2",
		info:        func(r *serializer.Registry) *serializer.InfoRegistry { return r.ROS2Info },
	}
	OpenSplice = Flavor{
		Name:        dataport.InterfaceOpenSplice,
		DefaultType: serializer.OpenSpliceName,
		byDataType:  true,
		info:        func(r *serializer.Registry) *serializer.InfoRegistry { return r.OpenSpliceInfo },
	}
)

// DefaultTopic is used when the profile has no <flavor>.topic
const DefaultTopic = "chatter"

// SubjectPrefix roots every pub/sub subject
const SubjectPrefix = "rtm"

// TopicKey is the property naming the topic, e.g. "ros2.topic"
func (f Flavor) TopicKey() string { return f.Name + ".topic" }

// Subject maps a topic name onto a NATS subject: "/sensor/imu" on ros
// becomes "rtm.ros.sensor.imu".
func (f Flavor) Subject(topic string) string {
	topic = strings.Trim(topic, "/")
	if topic == "" {
		topic = DefaultTopic
	}
	topic = strings.NewReplacer("/", ".", " ", "_", "*", "_", ">", "_").Replace(topic)
	return SubjectPrefix + "." + f.Name + "." + topic
}

func (f Flavor) subjectFor(props properties.Properties) string {
	return f.Subject(props.Get(f.TopicKey(), DefaultTopic))
}

// marshalingType returns the profile's marshaling type or the flavor default
func (f Flavor) marshalingType(props properties.Properties) string {
	if mt := props.Get(dataport.KeyMarshalingType); mt != "" {
		return mt
	}
	return props.Get("marshaling_type", f.DefaultType)
}

// infoName returns the key of the message info describing the profile's data
func (f Flavor) infoName(props properties.Properties) string {
	if f.byDataType {
		return props.Get(dataport.KeyDataType, props.Get("data_type"))
	}
	return f.marshalingType(props)
}

// reliable reports whether role ("publisher" or "subscriber") asked for the
// reliable QoS, e.g. ros2.subscriber.qos.reliability: reliable.
func (f Flavor) reliable(props properties.Properties, role string) bool {
	if f.Stream == "" {
		return false
	}
	v := props.Get(f.Name + "." + role + ".qos.reliability")
	return properties.Normalize(v) == "reliable"
}

// nodeName returns the caller id advertised with every message
func (f Flavor) nodeName(props properties.Properties) string {
	name := "/" + strings.TrimPrefix(props.Get(f.Name+".node.name", "rtcomp"), "/")
	if properties.ToBool(props.Get(f.Name+".node.anonymous"), false) {
		name += "_" + strconv.Itoa(os.Getpid())
	}
	return name
}
