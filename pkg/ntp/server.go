package ntp

import (
	"context"
	"net"
	"time"
)

// Server answers SNTP client requests from a local clock. It serves tests
// and local development; it does not discipline its own clock.
type Server struct {
	// Now defaults to time.Now.
	Now func() time.Time
	// Stratum defaults to 1.
	Stratum     uint8
	ReferenceID uint32
}

// Serve answers requests on pc until ctx is done. Malformed and non-client
// packets are ignored.
func (s *Server) Serve(ctx context.Context, pc net.PacketConn) error {
	now := s.Now
	if now == nil {
		now = time.Now
	}
	stratum := s.Stratum
	if stratum == 0 {
		stratum = 1
	}

	stop := context.AfterFunc(ctx, func() { _ = pc.SetReadDeadline(time.Now()) })
	defer stop()

	buf := make([]byte, 128)
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		received := now()

		req, err := unmarshalPacket(buf[:n])
		if err != nil || req.Mode != modeClient {
			continue
		}

		resp := &packet{
			Version:       req.Version,
			Mode:          modeServer,
			Stratum:       stratum,
			Poll:          req.Poll,
			Precision:     -20,
			ReferenceID:   s.ReferenceID,
			ReferenceTime: toNTPTime(received),
			OriginTime:    req.TransmitTime,
			ReceiveTime:   toNTPTime(received),
			TransmitTime:  toNTPTime(now()),
		}
		_, _ = pc.WriteTo(resp.marshal(), addr)
	}
}
