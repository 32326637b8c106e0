package frame

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3"
)

const (
	signallingTimeout = 10 * time.Second
	trackTimeout      = 15 * time.Second

	// GOP buffers beyond this are dropped until the next keyframe.
	maxGOPBytes = 4 << 20
)

// signalMessage covers every message the GStreamer webrtc signaller exchanges.
type signalMessage struct {
	Type      string          `json:"type"`
	PeerID    string          `json:"peerId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Producers []producerEntry `json:"producers,omitempty"`
	SDP       *sdpPayload     `json:"sdp,omitempty"`
	ICE       *icePayload     `json:"ice,omitempty"`
}

type producerEntry struct {
	ID   string            `json:"id"`
	Meta map[string]string `json:"meta"`
}

type sdpPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type icePayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
}

// Remote receives a camera over WebRTC using GStreamer's signalling protocol.
// Incoming H264 is depacketized and decoded to JPEG one picture at a time.
type Remote struct {
	cfg      Config
	producer string
	logger   *slog.Logger
	decoder  *h264Decoder

	ws   *websocket.Conn
	wsMu sync.Mutex
	pc   *webrtc.PeerConnection

	peerID    string
	sessionID string

	frames chan *Frame
	ready  chan struct{}
	done   chan struct{}
	seq    uint64

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	once      sync.Once
	closeOnce sync.Once
}

// OpenRemote connects to the producer registered for facing and waits for video.
func OpenRemote(ctx context.Context, cfg Config, facing Facing, logger *slog.Logger) (*Remote, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Remote{
		cfg:      cfg,
		producer: cfg.Producer(facing),
		logger:   logger.With("component", "frame.remote", "facing", facing),
		decoder:  newH264Decoder(cfg.Quality),
		frames:   make(chan *Frame, 1),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}

	if err := r.connect(ctx); err != nil {
		r.Close()
		return nil, &AcquireError{Facing: facing, Err: err}
	}
	return r, nil
}

// RemoteOpener returns an Opener backed by the WebRTC signaller.
func RemoteOpener(cfg Config, logger *slog.Logger) Opener {
	return func(ctx context.Context, facing Facing) (Source, error) {
		return OpenRemote(ctx, cfg, facing, logger)
	}
}

func (r *Remote) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: signallingTimeout}
	ws, _, err := dialer.DialContext(ctx, r.cfg.SignallingURL, nil)
	if err != nil {
		return fmt.Errorf("signalling connect: %w", err)
	}
	r.ws = ws

	welcome, err := r.read()
	if err != nil {
		return fmt.Errorf("welcome: %w", err)
	}
	if welcome.Type != "welcome" {
		return fmt.Errorf("expected welcome, got %q", welcome.Type)
	}
	r.peerID = welcome.PeerID

	producerID, err := r.findProducer()
	if err != nil {
		return err
	}

	if err := r.createPeerConnection(); err != nil {
		return fmt.Errorf("peer connection: %w", err)
	}
	if err := r.write(signalMessage{Type: "startSession", PeerID: producerID}); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go r.signalLoop(loopCtx)

	select {
	case <-r.ready:
		r.logger.Info("video track connected", "producer", r.producer)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(trackTimeout):
		return errors.New("timeout waiting for video track")
	}
}

func (r *Remote) read() (signalMessage, error) {
	var msg signalMessage
	r.ws.SetReadDeadline(time.Now().Add(signallingTimeout))
	defer r.ws.SetReadDeadline(time.Time{})
	_, data, err := r.ws.ReadMessage()
	if err != nil {
		return msg, err
	}
	err = json.Unmarshal(data, &msg)
	return msg, err
}

func (r *Remote) write(msg signalMessage) error {
	r.wsMu.Lock()
	defer r.wsMu.Unlock()
	return r.ws.WriteJSON(msg)
}

func (r *Remote) findProducer() (string, error) {
	if err := r.write(signalMessage{Type: "list"}); err != nil {
		return "", fmt.Errorf("list producers: %w", err)
	}
	resp, err := r.read()
	if err != nil {
		return "", fmt.Errorf("list producers: %w", err)
	}
	for _, p := range resp.Producers {
		if p.Meta["name"] == r.producer {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("producer %q not found among %d producers", r.producer, len(resp.Producers))
}

func (r *Remote) createPeerConnection() error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return err
	}
	r.pc = pc

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeVideo {
			return
		}
		r.logger.Debug("track received", "codec", track.Codec().MimeType)
		r.wg.Add(1)
		go r.readTrack(track)
	})

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || r.sessionID == "" {
			return
		}
		init := c.ToJSON()
		if err := r.write(signalMessage{
			Type:      "peer",
			SessionID: r.sessionID,
			ICE:       &icePayload{Candidate: init.Candidate, SDPMid: init.SDPMid, SDPMLineIndex: init.SDPMLineIndex},
		}); err != nil {
			r.logger.Warn("send ice candidate", "error", err)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		r.logger.Debug("connection state", "state", state.String())
	})
	return nil
}

func (r *Remote) signalLoop(ctx context.Context) {
	defer r.wg.Done()
	for ctx.Err() == nil {
		_, data, err := r.ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Warn("signalling closed", "error", err)
			}
			return
		}
		var msg signalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "sessionStarted":
			r.sessionID = msg.SessionID
		case "peer":
			r.handlePeer(msg)
		case "endSession":
			return
		}
	}
}

func (r *Remote) handlePeer(msg signalMessage) {
	if msg.SDP != nil && msg.SDP.Type == "offer" {
		offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP.SDP}
		if err := r.pc.SetRemoteDescription(offer); err != nil {
			r.logger.Warn("set remote description", "error", err)
			return
		}
		answer, err := r.pc.CreateAnswer(nil)
		if err != nil {
			r.logger.Warn("create answer", "error", err)
			return
		}
		if err := r.pc.SetLocalDescription(answer); err != nil {
			r.logger.Warn("set local description", "error", err)
			return
		}
		if err := r.write(signalMessage{
			Type:      "peer",
			SessionID: r.sessionID,
			SDP:       &sdpPayload{Type: answer.Type.String(), SDP: answer.SDP},
		}); err != nil {
			r.logger.Warn("send answer", "error", err)
		}
	}

	if msg.ICE != nil {
		if err := r.pc.AddICECandidate(webrtc.ICECandidateInit{
			Candidate:     msg.ICE.Candidate,
			SDPMid:        msg.ICE.SDPMid,
			SDPMLineIndex: msg.ICE.SDPMLineIndex,
		}); err != nil {
			r.logger.Debug("add ice candidate", "error", err)
		}
	}
}

// readTrack depacketizes RTP into access units. Each completed access unit is
// appended to the current group of pictures and the GOP is decoded so the
// newest picture is always available.
func (r *Remote) readTrack(track *webrtc.TrackRemote) {
	defer r.wg.Done()
	r.once.Do(func() { close(r.ready) })

	var (
		depacketizer codecs.H264Packet
		gop          []byte
		au           []byte
		haveKey      bool
	)

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		nal, err := depacketizer.Unmarshal(pkt.Payload)
		if err != nil || len(nal) == 0 {
			continue
		}
		au = append(au, nal...)
		if !pkt.Marker {
			continue
		}

		if isKeyframe(au) {
			gop = gop[:0]
			haveKey = true
		}
		if haveKey && len(gop)+len(au) < maxGOPBytes {
			gop = append(gop, au...)
			r.publish(gop)
		} else {
			haveKey = false
		}
		au = au[:0]
	}
}

func (r *Remote) publish(gop []byte) {
	still, w, h, err := r.decoder.Decode(context.Background(), gop)
	if err != nil {
		r.logger.Debug("decode", "error", err)
		return
	}
	r.seq++
	f := &Frame{Seq: r.seq, JPEG: still, Width: w, Height: h, CapturedAt: time.Now()}

	// Keep only the newest decoded picture.
	select {
	case <-r.frames:
	default:
	}
	select {
	case r.frames <- f:
	default:
	}
}

// isKeyframe reports whether an access unit starts with SPS or an IDR slice.
func isKeyframe(au []byte) bool {
	for i := 0; i+4 < len(au); i++ {
		if au[i] == 0 && au[i+1] == 0 && au[i+2] == 1 {
			switch au[i+3] & 0x1F {
			case 5, 7:
				return true
			}
		}
	}
	return false
}

// Next returns the newest decoded picture, waiting for one if necessary.
func (r *Remote) Next(ctx context.Context) (*Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		return nil, ErrClosed
	case f := <-r.frames:
		return f, nil
	}
}

// Close tears down the peer connection and signalling socket.
func (r *Remote) Close() error {
	r.closeOnce.Do(func() { close(r.done) })
	if r.cancel != nil {
		r.cancel()
	}
	var err error
	if r.pc != nil {
		err = r.pc.Close()
	}
	if r.ws != nil {
		r.ws.Close()
	}
	r.wg.Wait()
	return err
}

var _ Source = (*Remote)(nil)
