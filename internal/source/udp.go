package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skypro1111/livecaption/internal/audio"
	"github.com/skypro1111/livecaption/internal/metrics"
	"github.com/skypro1111/livecaption/internal/protocol"
)

// UDPConfig configures the network microphone listener
type UDPConfig struct {
	ListenAddr    string
	BufferSize    int
	ChunkSize     int
	SampleRate    int
	ReorderWindow uint32
}

// UDP receives a single network microphone stream. A hello packet starts a
// session; audio for any other stream ID is dropped until the next hello.
// Run may be called only once.
type UDP struct {
	cfg     UDPConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu    sync.RWMutex
	conn  *net.UDPConn
	ready chan struct{}

	// Session state, touched only by the receive loop
	session *udpSession

	// Statistics
	packetsReceived  atomic.Uint64
	packetsProcessed atomic.Uint64
	parseErrors      atomic.Uint64
	unknownStream    atomic.Uint64
	sessions         atomic.Uint64
}

type udpSession struct {
	streamID   uint32
	device     string
	sampleRate int
	channels   int
	framer     *audio.Framer
	resampler  *audio.Resampler
}

// UDPStats represents listener statistics
type UDPStats struct {
	PacketsReceived  uint64 `json:"packets_received"`
	PacketsProcessed uint64 `json:"packets_processed"`
	ParseErrors      uint64 `json:"parse_errors"`
	UnknownStream    uint64 `json:"unknown_stream_packets"`
	Sessions         uint64 `json:"sessions"`
}

// NewUDP creates a listener. Nothing is bound until Run.
func NewUDP(cfg UDPConfig, logger *slog.Logger, m *metrics.Metrics) (*UDP, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = protocol.MaxPacketSize
	}

	return &UDP{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		ready:   make(chan struct{}),
	}, nil
}

// Ready is closed once the socket is bound
func (u *UDP) Ready() <-chan struct{} {
	return u.ready
}

// Addr returns the bound address, or nil before Run has bound the socket
func (u *UDP) Addr() net.Addr {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

// Run implements Source
func (u *UDP) Run(ctx context.Context, emit func(audio.Chunk)) error {
	addr, err := net.ResolveUDPAddr("udp", u.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}
	defer conn.Close()

	if err := conn.SetReadBuffer(u.cfg.BufferSize); err != nil {
		u.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", u.cfg.BufferSize),
			slog.String("error", err.Error()))
	}

	u.mu.Lock()
	u.conn = conn
	u.mu.Unlock()
	close(u.ready)

	u.logger.Info("Network microphone listening",
		slog.String("address", conn.LocalAddr().String()),
		slog.Int("sample_rate", u.cfg.SampleRate),
		slog.Int("chunk_size", u.cfg.ChunkSize))

	buffer := make([]byte, protocol.MaxPacketSize)
	for {
		if ctx.Err() != nil {
			u.endSession(emit)
			return ctx.Err()
		}

		// Wake up periodically to observe cancellation
		if err := conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond)); err != nil {
			return fmt.Errorf("failed to set read deadline: %w", err)
		}

		n, remote, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			u.logger.Error("Failed to read UDP packet", slog.String("error", err.Error()))
			continue
		}

		u.packetsReceived.Add(1)
		u.metrics.RecordPacketReceived()
		u.handlePacket(buffer[:n], remote, emit)
	}
}

// handlePacket parses one datagram. The buffer is reused after it returns.
func (u *UDP) handlePacket(data []byte, remote *net.UDPAddr, emit func(audio.Chunk)) {
	packet, err := protocol.ParsePacket(data)
	if err != nil {
		u.parseErrors.Add(1)
		u.metrics.RecordParseError()
		u.logger.Warn("Failed to parse packet",
			slog.String("remote_addr", remote.String()),
			slog.Int("packet_size", len(data)),
			slog.String("error", err.Error()))
		return
	}
	u.packetsProcessed.Add(1)

	switch packet.Header.PacketType {
	case protocol.PacketTypeHello:
		u.handleHello(packet.Header, packet.Hello, remote, emit)
	case protocol.PacketTypeAudio:
		u.handleAudio(packet.Header, packet.Audio, emit)
	}
}

func (u *UDP) handleHello(header *protocol.Header, hello *protocol.HelloPayload, remote *net.UDPAddr, emit func(audio.Chunk)) {
	if s := u.session; s != nil && s.streamID == header.StreamID {
		u.logger.Debug("Duplicate hello ignored", slog.Uint64("stream_id", uint64(header.StreamID)))
		return
	}

	// A new stream replaces the current one
	u.endSession(emit)

	framer := audio.NewFramer(u.cfg.ChunkSize, u.cfg.SampleRate)
	if u.cfg.ReorderWindow > 0 {
		framer.SetReorderWindow(u.cfg.ReorderWindow)
	}
	u.session = &udpSession{
		streamID:   header.StreamID,
		device:     hello.GetDeviceName(),
		sampleRate: int(hello.SampleRate),
		channels:   int(hello.Channels),
		framer:     framer,
	}
	if int(hello.SampleRate) != u.cfg.SampleRate {
		u.session.resampler = audio.NewResampler(int(hello.SampleRate), u.cfg.SampleRate)
	}
	u.sessions.Add(1)

	attrs := []any{
		slog.Uint64("stream_id", uint64(header.StreamID)),
		slog.String("device", hello.GetDeviceName()),
		slog.Int("sample_rate", int(hello.SampleRate)),
		slog.Int("channels", int(hello.Channels)),
		slog.String("remote_addr", remote.String()),
	}
	if int(hello.SampleRate) != u.cfg.SampleRate {
		attrs = append(attrs, slog.Int("resample_to", u.cfg.SampleRate))
	}
	u.logger.Info("Network microphone connected", attrs...)
}

func (u *UDP) handleAudio(header *protocol.Header, payload *protocol.AudioPayload, emit func(audio.Chunk)) {
	s := u.session
	if s == nil || s.streamID != header.StreamID {
		u.unknownStream.Add(1)
		u.logger.Warn("Received audio packet for unknown stream",
			slog.Uint64("stream_id", uint64(header.StreamID)),
			slog.Uint64("sequence", uint64(payload.Sequence)))
		return
	}

	samples, err := audio.PCM16ToFloat32(payload.AudioData)
	if err != nil {
		u.parseErrors.Add(1)
		u.metrics.RecordParseError()
		return
	}
	samples = audio.DownmixInterleaved(samples, s.channels)
	if s.resampler != nil {
		samples = s.resampler.Process(samples)
	}

	var status audio.ChunkStatus
	if header.Overflowed() {
		status |= audio.StatusOverflow
	}

	if err := s.framer.AddSamples(payload.Sequence, samples, status); err != nil {
		u.logger.Debug("Audio packet rejected",
			slog.Uint64("stream_id", uint64(header.StreamID)),
			slog.String("error", err.Error()))
		return
	}

	for _, chunk := range s.framer.Chunks() {
		emit(chunk)
	}
}

// endSession flushes the current session's partial chunk
func (u *UDP) endSession(emit func(audio.Chunk)) {
	s := u.session
	if s == nil {
		return
	}
	u.session = nil

	for _, chunk := range s.framer.Chunks() {
		emit(chunk)
	}
	if chunk, ok := s.framer.Flush(); ok {
		emit(chunk)
	}

	stats := s.framer.GetStats()
	u.logger.Info("Network microphone session ended",
		slog.Uint64("stream_id", uint64(s.streamID)),
		slog.String("device", s.device),
		slog.Uint64("packets", uint64(stats.TotalPackets)),
		slog.Uint64("lost_packets", uint64(stats.LostPackets)),
		slog.Float64("loss_rate", stats.LossRate))
}

// GetStats returns listener statistics. Safe from any goroutine.
func (u *UDP) GetStats() UDPStats {
	return UDPStats{
		PacketsReceived:  u.packetsReceived.Load(),
		PacketsProcessed: u.packetsProcessed.Load(),
		ParseErrors:      u.parseErrors.Load(),
		UnknownStream:    u.unknownStream.Load(),
		Sessions:         u.sessions.Load(),
	}
}
