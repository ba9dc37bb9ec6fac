package voice

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bwmarrin/discordgo"
	"layeh.com/gopus"

	"soundbort/internal/playback"
)

const (
	channels   = 2
	sampleRate = 48000
	frameSize  = 960 // 20ms at 48kHz
)

// Transport joins Discord voice channels. discordgo keeps one voice
// connection per guild; joining while connected moves it.
type Transport struct {
	dg *discordgo.Session
}

func NewTransport(dg *discordgo.Session) *Transport {
	return &Transport{dg: dg}
}

func (t *Transport) Join(guildID, channelID string) (playback.VoiceConn, error) {
	vc, err := t.dg.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("voice join: %w", err)
	}
	return &Conn{vc: vc}, nil
}

// Conn streams PCM to one discordgo voice connection as Opus frames.
type Conn struct {
	vc *discordgo.VoiceConnection
}

// Stream encodes s16le PCM from src into 20ms Opus frames and pushes them
// to the voice connection until src ends or stop is signalled.
func (c *Conn) Stream(src io.Reader, stop <-chan struct{}) error {
	encoder, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return fmt.Errorf("encoder error: %w", err)
	}

	if err := c.vc.Speaking(true); err != nil {
		return fmt.Errorf("set speaking: %w", err)
	}
	defer c.vc.Speaking(false)

	pcmBuf := make([]byte, frameSize*channels*2)
	intBuf := make([]int16, frameSize*channels)

	for {
		select {
		case <-stop:
			return nil
		default:
			_, err := io.ReadFull(src, pcmBuf)
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				// End of clip; a trailing partial frame is dropped.
				return nil
			}
			if err != nil {
				return fmt.Errorf("read error: %w", err)
			}

			for i := range intBuf {
				intBuf[i] = int16(binary.LittleEndian.Uint16(pcmBuf[i*2 : i*2+2]))
			}

			opus, err := encoder.Encode(intBuf, frameSize, len(pcmBuf))
			if err != nil {
				return fmt.Errorf("encode error: %w", err)
			}

			select {
			case c.vc.OpusSend <- opus:
			case <-stop:
				return nil
			}
		}
	}
}

func (c *Conn) Disconnect() error {
	return c.vc.Disconnect()
}
