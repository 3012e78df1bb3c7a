package sipphone

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pion/sdp/v3"
	"github.com/sebas/voipcenter/internal/voip/authority"
)

// Payload types offered to the phone
const (
	formatPCMU      = "0"
	formatPCMA      = "8"
	formatL16       = "97"
	formatDTMF      = "101"
	formatH264      = "102"
	minPacketTimeMS = 10
)

// BuildOffer creates the SDP offer sent with every INVITE. The audio line
// follows the session configuration; video mode adds a video line on the
// next port pair.
func BuildOffer(addr string, port int, cfg authority.AudioConfig, sessionID uint64) ([]byte, error) {
	if addr == "" {
		return nil, fmt.Errorf("sdp: empty media address")
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sdp: invalid sample rate %g", cfg.SampleRate)
	}

	desc := &sdp.SessionDescription{
		Origin: sdp.Origin{
			Username:       "voipcenter",
			SessionID:      sessionID,
			SessionVersion: sessionID,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: addr,
		},
		SessionName: "voipcenter call",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: addr},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
		MediaDescriptions: []*sdp.MediaDescription{audioMedia(port, cfg)},
	}
	if cfg.Mode == authority.ModeVideo {
		desc.MediaDescriptions = append(desc.MediaDescriptions, videoMedia(port+2))
	}
	return desc.Marshal()
}

func audioMedia(port int, cfg authority.AudioConfig) *sdp.MediaDescription {
	formats := []string{formatPCMU, formatPCMA, formatL16, formatDTMF}
	attrs := []sdp.Attribute{
		{Key: "rtpmap", Value: formatPCMU + " PCMU/8000"},
		{Key: "rtpmap", Value: formatPCMA + " PCMA/8000"},
		{Key: "rtpmap", Value: formatL16 + " L16/" + strconv.FormatFloat(cfg.SampleRate, 'f', -1, 64)},
		{Key: "rtpmap", Value: formatDTMF + " telephone-event/8000"},
		{Key: "fmtp", Value: formatDTMF + " 0-15"},
		{Key: "ptime", Value: strconv.Itoa(packetTime(cfg.IOBufferDuration))},
		{Key: "sendrecv"},
	}
	return &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   "audio",
			Port:    sdp.RangedPort{Value: port},
			Protos:  []string{"RTP", "AVP"},
			Formats: formats,
		},
		Attributes: attrs,
	}
}

func videoMedia(port int) *sdp.MediaDescription {
	return &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   "video",
			Port:    sdp.RangedPort{Value: port},
			Protos:  []string{"RTP", "AVP"},
			Formats: []string{formatH264},
		},
		Attributes: []sdp.Attribute{
			{Key: "rtpmap", Value: formatH264 + " H264/90000"},
			{Key: "fmtp", Value: formatH264 + " packetization-mode=1"},
			{Key: "sendrecv"},
		},
	}
}

// packetTime converts the IO buffer duration into a whole-millisecond ptime
func packetTime(d time.Duration) int {
	ms := int((d + time.Millisecond - 1) / time.Millisecond)
	if ms < minPacketTimeMS {
		return minPacketTimeMS
	}
	return ms
}
