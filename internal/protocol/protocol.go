package protocol

import (
	"encoding/binary"
	"fmt"
)

// Protocol constants for the network microphone stream
const (
	// Packet types
	PacketTypeHello = 0x01
	PacketTypeAudio = 0x02

	// Header flags
	FlagOverflow = 0x01 // Sender's capture buffer overflowed before this packet
	flagMask     = FlagOverflow

	// Packet structure sizes
	HeaderSize             = 8  // 1 + 2 + 4 + 1 bytes
	HelloPayloadSize       = 74 // 64 + 4 + 2 + 4 bytes
	AudioPayloadHeaderSize = 4  // Sequence number (4 bytes)

	// Field sizes in hello payload
	DeviceNameSize = 64
	SampleRateSize = 4
	ChannelsSize   = 2
	TimestampSize  = 4

	// MaxPacketSize is the largest packet the 16-bit length field allows
	MaxPacketSize = 0xFFFF
)

// Header represents the 8-byte packet header
// Layout: [PacketType:1][PacketLen:2][StreamID:4][Flags:1]
type Header struct {
	PacketType uint8  // 0x01=Hello, 0x02=Audio
	PacketLen  uint16 // Total packet size (header + payload)
	StreamID   uint32 // Identifies one capture session
	Flags      uint8  // FlagOverflow
}

// HelloPayload announces a capture session
// Layout: [DeviceName:64][SampleRate:4][Channels:2][Timestamp:4]
type HelloPayload struct {
	DeviceName [DeviceNameSize]byte // Null-terminated string
	SampleRate uint32
	Channels   uint16
	Timestamp  uint32 // Unix timestamp
}

// AudioPayload carries interleaved PCM16 little-endian samples
// Layout: [Sequence:4][AudioData:N]
type AudioPayload struct {
	Sequence  uint32
	AudioData []byte
}

// ParsedPacket represents a fully parsed packet
type ParsedPacket struct {
	Header *Header
	Hello  *HelloPayload // Only set for hello packets
	Audio  *AudioPayload // Only set for audio packets
}

// ParseHeader parses the 8-byte packet header
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("header too short: expected %d bytes, got %d", HeaderSize, len(data))
	}

	return &Header{
		PacketType: data[0],
		PacketLen:  binary.BigEndian.Uint16(data[1:3]),
		StreamID:   binary.BigEndian.Uint32(data[3:7]),
		Flags:      data[7],
	}, nil
}

// ParseHelloPayload parses the 74-byte hello payload
func ParseHelloPayload(data []byte) (*HelloPayload, error) {
	if len(data) < HelloPayloadSize {
		return nil, fmt.Errorf("hello payload too short: expected %d bytes, got %d",
			HelloPayloadSize, len(data))
	}

	payload := &HelloPayload{}
	copy(payload.DeviceName[:], data[:DeviceNameSize])

	off := DeviceNameSize
	payload.SampleRate = binary.BigEndian.Uint32(data[off : off+SampleRateSize])
	off += SampleRateSize
	payload.Channels = binary.BigEndian.Uint16(data[off : off+ChannelsSize])
	off += ChannelsSize
	payload.Timestamp = binary.BigEndian.Uint32(data[off : off+TimestampSize])

	if payload.SampleRate == 0 {
		return nil, fmt.Errorf("hello sample rate must be positive")
	}
	if payload.Channels == 0 {
		return nil, fmt.Errorf("hello channel count must be positive")
	}

	return payload, nil
}

// ParseAudioPayload parses the audio payload (4-byte sequence + PCM)
func ParseAudioPayload(data []byte) (*AudioPayload, error) {
	if len(data) < AudioPayloadHeaderSize {
		return nil, fmt.Errorf("audio payload too short: expected at least %d bytes, got %d",
			AudioPayloadHeaderSize, len(data))
	}

	payload := &AudioPayload{
		Sequence: binary.BigEndian.Uint32(data[0:4]),
	}
	if len(data) > AudioPayloadHeaderSize {
		payload.AudioData = make([]byte, len(data)-AudioPayloadHeaderSize)
		copy(payload.AudioData, data[AudioPayloadHeaderSize:])
	}
	if len(payload.AudioData)%2 != 0 {
		return nil, fmt.Errorf("audio data has odd length %d", len(payload.AudioData))
	}

	return payload, nil
}

// ParsePacket parses a complete packet (header + payload)
func ParsePacket(data []byte) (*ParsedPacket, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	if int(header.PacketLen) != len(data) {
		return nil, fmt.Errorf("packet length mismatch: header says %d bytes, got %d bytes",
			header.PacketLen, len(data))
	}

	if err := ValidateHeader(header); err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	packet := &ParsedPacket{Header: header}
	payloadData := data[HeaderSize:]

	switch header.PacketType {
	case PacketTypeHello:
		payload, err := ParseHelloPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse hello payload: %w", err)
		}
		packet.Hello = payload

	case PacketTypeAudio:
		payload, err := ParseAudioPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audio payload: %w", err)
		}
		packet.Audio = payload
	}

	return packet, nil
}

// ValidateHeader validates the packet header fields
func ValidateHeader(header *Header) error {
	if !IsValidPacketType(header.PacketType) {
		return fmt.Errorf("invalid packet type: 0x%02x", header.PacketType)
	}

	if header.Flags&^flagMask != 0 {
		return fmt.Errorf("unknown flags: 0x%02x", header.Flags)
	}

	if header.PacketLen < HeaderSize {
		return fmt.Errorf("packet length too small: %d (minimum %d)", header.PacketLen, HeaderSize)
	}

	payloadSize := int(header.PacketLen) - HeaderSize
	switch header.PacketType {
	case PacketTypeHello:
		if payloadSize != HelloPayloadSize {
			return fmt.Errorf("hello packet payload size mismatch: expected %d, got %d",
				HelloPayloadSize, payloadSize)
		}
	case PacketTypeAudio:
		if payloadSize < AudioPayloadHeaderSize {
			return fmt.Errorf("audio packet payload too small: expected at least %d, got %d",
				AudioPayloadHeaderSize, payloadSize)
		}
	}

	return nil
}

// IsValidPacketType checks if the packet type is valid
func IsValidPacketType(ptype uint8) bool {
	return ptype == PacketTypeHello || ptype == PacketTypeAudio
}

// EncodeHello builds a hello packet. Device names longer than the field are
// truncated.
func EncodeHello(streamID uint32, device string, sampleRate uint32, channels uint16, timestamp uint32) []byte {
	buf := make([]byte, HeaderSize+HelloPayloadSize)
	putHeader(buf, PacketTypeHello, streamID, 0)

	p := buf[HeaderSize:]
	name := []byte(device)
	if len(name) > DeviceNameSize-1 {
		name = name[:DeviceNameSize-1]
	}
	copy(p[:DeviceNameSize], name)

	off := DeviceNameSize
	binary.BigEndian.PutUint32(p[off:], sampleRate)
	off += SampleRateSize
	binary.BigEndian.PutUint16(p[off:], channels)
	off += ChannelsSize
	binary.BigEndian.PutUint32(p[off:], timestamp)

	return buf
}

// EncodeAudio builds an audio packet around PCM16LE data
func EncodeAudio(streamID, sequence uint32, flags uint8, pcm []byte) ([]byte, error) {
	total := HeaderSize + AudioPayloadHeaderSize + len(pcm)
	if total > MaxPacketSize {
		return nil, fmt.Errorf("audio packet too large: %d bytes (maximum %d)", total, MaxPacketSize)
	}

	buf := make([]byte, total)
	putHeader(buf, PacketTypeAudio, streamID, flags)
	binary.BigEndian.PutUint32(buf[HeaderSize:], sequence)
	copy(buf[HeaderSize+AudioPayloadHeaderSize:], pcm)

	return buf, nil
}

func putHeader(buf []byte, ptype uint8, streamID uint32, flags uint8) {
	buf[0] = ptype
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(buf)))
	binary.BigEndian.PutUint32(buf[3:7], streamID)
	buf[7] = flags
}

// ExtractString extracts a null-terminated string from a fixed-size byte array
func ExtractString(buf []byte) string {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i])
		}
	}
	return string(buf)
}

// GetDeviceName extracts the device name as a string
func (h *HelloPayload) GetDeviceName() string {
	return ExtractString(h.DeviceName[:])
}

// Overflowed reports whether the sender flagged a capture overflow
func (h *Header) Overflowed() bool {
	return h.Flags&FlagOverflow != 0
}

// String returns a human-readable representation of the header
func (h *Header) String() string {
	var packetType string
	switch h.PacketType {
	case PacketTypeHello:
		packetType = "Hello"
	case PacketTypeAudio:
		packetType = "Audio"
	default:
		packetType = fmt.Sprintf("Unknown(0x%02x)", h.PacketType)
	}

	return fmt.Sprintf("Header{Type:%s, Len:%d, StreamID:%d, Flags:0x%02x}",
		packetType, h.PacketLen, h.StreamID, h.Flags)
}

// String returns a human-readable representation of the hello payload
func (h *HelloPayload) String() string {
	return fmt.Sprintf("HelloPayload{DeviceName:%q, SampleRate:%d, Channels:%d, Timestamp:%d}",
		h.GetDeviceName(), h.SampleRate, h.Channels, h.Timestamp)
}

// String returns a human-readable representation of the audio payload
func (a *AudioPayload) String() string {
	return fmt.Sprintf("AudioPayload{Sequence:%d, AudioDataLen:%d}", a.Sequence, len(a.AudioData))
}
