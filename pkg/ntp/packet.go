package ntp

import (
	"encoding/binary"
	"time"
)

const (
	packetSize = 48

	// ntpEpochOffset is the number of seconds between 1900-01-01 and 1970-01-01.
	ntpEpochOffset = 2208988800

	version = 4

	modeClient = 3
	modeServer = 4

	leapNotInSync = 3
)

// packet is the fixed 48-byte NTP header. Timestamps are 32.32 fixed point
// seconds since 1900.
type packet struct {
	Leap           uint8
	Version        uint8
	Mode           uint8
	Stratum        uint8
	Poll           int8
	Precision      int8
	RootDelay      uint32
	RootDispersion uint32
	ReferenceID    uint32
	ReferenceTime  uint64
	OriginTime     uint64
	ReceiveTime    uint64
	TransmitTime   uint64
}

func (p *packet) marshal() []byte {
	b := make([]byte, packetSize)
	b[0] = p.Leap<<6 | (p.Version&0x07)<<3 | p.Mode&0x07
	b[1] = p.Stratum
	b[2] = byte(p.Poll)
	b[3] = byte(p.Precision)
	binary.BigEndian.PutUint32(b[4:], p.RootDelay)
	binary.BigEndian.PutUint32(b[8:], p.RootDispersion)
	binary.BigEndian.PutUint32(b[12:], p.ReferenceID)
	binary.BigEndian.PutUint64(b[16:], p.ReferenceTime)
	binary.BigEndian.PutUint64(b[24:], p.OriginTime)
	binary.BigEndian.PutUint64(b[32:], p.ReceiveTime)
	binary.BigEndian.PutUint64(b[40:], p.TransmitTime)
	return b
}

func unmarshalPacket(b []byte) (*packet, error) {
	if len(b) < packetSize {
		return nil, ErrShortPacket
	}
	return &packet{
		Leap:           b[0] >> 6,
		Version:        (b[0] >> 3) & 0x07,
		Mode:           b[0] & 0x07,
		Stratum:        b[1],
		Poll:           int8(b[2]),
		Precision:      int8(b[3]),
		RootDelay:      binary.BigEndian.Uint32(b[4:]),
		RootDispersion: binary.BigEndian.Uint32(b[8:]),
		ReferenceID:    binary.BigEndian.Uint32(b[12:]),
		ReferenceTime:  binary.BigEndian.Uint64(b[16:]),
		OriginTime:     binary.BigEndian.Uint64(b[24:]),
		ReceiveTime:    binary.BigEndian.Uint64(b[32:]),
		TransmitTime:   binary.BigEndian.Uint64(b[40:]),
	}, nil
}

// toNTPTime converts t to 32.32 fixed point seconds since 1900.
func toNTPTime(t time.Time) uint64 {
	nsec := uint64(t.Sub(ntpEpoch))
	sec := nsec / uint64(time.Second)
	frac := ((nsec % uint64(time.Second)) << 32) / uint64(time.Second)
	return sec<<32 | frac
}

// eraLength is the span of one 32-bit NTP seconds counter, about 136 years.
const eraLength = time.Duration(1<<32) * time.Second

// fromNTPTime converts a 32.32 fixed point timestamp to time.Time, picking
// the NTP era closest to near. Seconds wrap on 2036-02-07.
func fromNTPTime(v uint64, near time.Time) time.Time {
	sec := v >> 32
	frac := v & 0xffffffff
	nsec := (frac * uint64(time.Second)) >> 32
	t := ntpEpoch.Add(time.Duration(sec)*time.Second + time.Duration(nsec))
	for near.Sub(t) > eraLength/2 {
		t = t.Add(eraLength)
	}
	return t
}

var ntpEpoch = time.Unix(-ntpEpochOffset, 0).UTC()
