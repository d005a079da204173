package peer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dkeye/callrelay/internal/adapters/rtc"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const channelLabel = "callpeer"

type Options struct {
	Server string
	CallID string
	STUN   []string
	// Loopback also offers 127.0.0.1 candidates.
	Loopback bool
}

var ErrRelayClosed = errors.New("relay connection closed")

// Run joins the call, negotiates a data channel with whoever else is in
// it and pipes in to the channel and the channel to out until either
// side goes away.
//
// Both peers send hello on connect; a peer hearing a hello that is not a
// reply answers with its own. Once the two ids are known the lower one
// makes the offer, which also settles simultaneous joins.
func Run(ctx context.Context, opts Options, in io.Reader, out io.Writer) error {
	sig, err := Dial(ctx, opts.Server, opts.CallID)
	if err != nil {
		return err
	}
	defer sig.Close()

	pc, err := rtc.NewWebRTCConnection(rtc.NewAPI(opts.Loopback), rtc.DefaultWebRTCConfig(opts.STUN...), opts.CallID)
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pc.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		if err := sig.Send(Envelope{Type: TypeCandidate, Candidate: &ci}); err != nil {
			log.Warn().Err(err).Str("module", "peer").Msg("send candidate")
		}
	})
	pc.OnClosed(cancel)

	ready := make(chan *webrtc.DataChannel, 1)
	pc.OnDataChannel(func(dc *webrtc.DataChannel) { attach(dc, out, ready) })
	if err := pc.Start(ctx); err != nil {
		return err
	}
	defer pc.Close()

	self := uuid.NewString()
	if err := sig.Send(Envelope{Type: TypeHello, From: self}); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return negotiate(ctx, self, sig, pc, out, ready) })
	g.Go(func() error { return pump(ctx, in, ready) })
	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func negotiate(ctx context.Context, self string, sig *SignalClient, pc *rtc.WebRTCConnection, out io.Writer, ready chan *webrtc.DataChannel) error {
	var offerOnce sync.Once
	for {
		var env Envelope
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok = <-sig.Incoming():
			if !ok {
				return ErrRelayClosed
			}
		}

		var err error
		switch env.Type {
		case TypeHello:
			if !env.Reply {
				if err = sig.Send(Envelope{Type: TypeHello, From: self, Reply: true}); err != nil {
					return err
				}
			}
			if self < env.From {
				offerOnce.Do(func() { err = offer(sig, pc, out, ready) })
			}
		case TypeOffer:
			var answer *webrtc.SessionDescription
			answer, err = pc.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: env.SDP})
			if err == nil {
				err = sig.Send(Envelope{Type: TypeAnswer, SDP: answer.SDP})
			}
		case TypeAnswer:
			err = pc.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: env.SDP})
		case TypeCandidate:
			if env.Candidate != nil {
				err = pc.AddICECandidate(*env.Candidate)
			}
		default:
			log.Debug().Str("module", "peer").Str("type", env.Type).Msg("ignored envelope")
		}
		if err != nil {
			return fmt.Errorf("%s: %w", env.Type, err)
		}
	}
}

func offer(sig *SignalClient, pc *rtc.WebRTCConnection, out io.Writer, ready chan *webrtc.DataChannel) error {
	dc, err := pc.CreateDataChannel(channelLabel)
	if err != nil {
		return err
	}
	attach(dc, out, ready)
	desc, err := pc.CreateOffer()
	if err != nil {
		return err
	}
	return sig.Send(Envelope{Type: TypeOffer, SDP: desc.SDP})
}

func attach(dc *webrtc.DataChannel, out io.Writer, ready chan *webrtc.DataChannel) {
	dc.OnOpen(func() {
		log.Info().Str("module", "peer").Str("channel", dc.Label()).Msg("data channel open")
		select {
		case ready <- dc:
		default:
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		_, _ = fmt.Fprintf(out, "%s\n", msg.Data)
	})
}

func pump(ctx context.Context, in io.Reader, ready chan *webrtc.DataChannel) error {
	var dc *webrtc.DataChannel
	select {
	case <-ctx.Done():
		return ctx.Err()
	case dc = <-ready:
	}

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			errc <- err
			return
		}
		errc <- io.EOF
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errc:
			return err
		case line := <-lines:
			if err := dc.SendText(line); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		}
	}
}
