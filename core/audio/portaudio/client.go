// Package portaudio provides an alternate device client for hosts where
// miniaudio backends are unavailable.
package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/voxprep/voxprep-core/core/audio"
)

type Client struct {
	bufferSize    int
	inStream      *portaudio.Stream
	outStream     *portaudio.Stream
	leftoverAudio []byte

	in  []float32
	out []int16

	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce *sync.Once
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	in := make([]float32, bufferSize)
	inStream, err := portaudio.OpenDefaultStream(audio.DefaultChannels, 0, audio.DefaultSampleRate, bufferSize, in)
	if err != nil {
		portaudio.Terminate()
		return nil, classifyError(fmt.Errorf("failed to open capture stream: %w", err))
	}

	out := make([]int16, bufferSize)
	outStream, err := portaudio.OpenDefaultStream(0, audio.DefaultChannels, audio.DefaultSampleRate, bufferSize, out)
	if err != nil {
		inStream.Close()
		portaudio.Terminate()
		return nil, classifyError(fmt.Errorf("failed to open playback stream: %w", err))
	}
	if err := outStream.Start(); err != nil {
		inStream.Close()
		outStream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start playback stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		inStream:   inStream,
		outStream:  outStream,
		in:         in,
		out:        out,
	}, nil
}

func (c *Client) StartCapture(ctx context.Context, onSamples func(samples []float32)) error {
	c.mu.Lock()
	if c.stopCh != nil {
		c.mu.Unlock()
		return nil
	}
	stopCh := make(chan struct{})
	stopOnce := &sync.Once{}
	c.stopCh = stopCh
	c.stopOnce = stopOnce
	c.mu.Unlock()

	if err := c.inStream.Start(); err != nil {
		c.mu.Lock()
		c.stopCh = nil
		c.stopOnce = nil
		c.mu.Unlock()
		return classifyError(fmt.Errorf("failed to start capture stream: %w", err))
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			default:
				if err := c.inStream.Read(); err != nil {
					continue
				}
				onSamples(c.in)
			}
		}
	}()

	return nil
}

func (c *Client) StopCapture() error {
	c.mu.Lock()
	stopCh, stopOnce := c.stopCh, c.stopOnce
	c.stopCh = nil
	c.stopOnce = nil
	c.mu.Unlock()

	if stopCh == nil {
		return nil
	}
	stopOnce.Do(func() { close(stopCh) })
	return c.inStream.Stop()
}

func (c *Client) SendAudio(audio []byte) error {
	bufferSize := c.bufferSize * 2

	c.mu.Lock()
	defer c.mu.Unlock()

	audio = append(c.leftoverAudio, audio...)
	written := 0
	for written+bufferSize <= len(audio) {
		_ = binary.Read(bytes.NewBuffer(audio[written:written+bufferSize]), binary.LittleEndian, c.out)
		if err := c.outStream.Write(); err != nil {
			break
		}
		written += bufferSize
	}
	c.leftoverAudio = append([]byte(nil), audio[written:]...)

	return nil
}

func (c *Client) ClearBuffer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leftoverAudio = make([]byte, 0)
}

func (c *Client) Close() error {
	_ = c.StopCapture()
	errs := errors.Join(c.inStream.Close(), c.outStream.Close())
	return errors.Join(errs, portaudio.Terminate())
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func classifyError(err error) error {
	if err == nil {
		return nil
	}

	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "permission"), strings.Contains(message, "access denied"):
		return errors.Join(audio.ErrPermissionDenied, err)
	case strings.Contains(message, "no default"), strings.Contains(message, "no device"), strings.Contains(message, "invalid device"):
		return errors.Join(audio.ErrNoDevice, err)
	case strings.Contains(message, "busy"), strings.Contains(message, "in use"):
		return errors.Join(audio.ErrDeviceBusy, err)
	}
	return err
}
