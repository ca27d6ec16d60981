// Command wavfeed streams a WAV file into a running transcriber as one
// speaker's audio, paced in real time, and optionally prints the live
// transcript stream.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"conversation-transcriber/internal/models"
	"conversation-transcriber/internal/service/audio"
)

const chunkInterval = audio.FrameDuration

func main() {
	audioFile := flag.String("audio", "testdata/sample-24khz.wav", "Path to WAV file (24kHz 16-bit; mono for me, stereo for them)")
	server := flag.String("server", "http://localhost:8080", "Transcriber base URL")
	speakerName := flag.String("speaker", "me", "Speaker to feed: me or them")
	language := flag.String("language", "", "Language code for the session (empty uses the server default)")
	start := flag.Bool("start", true, "Start a session before streaming")
	stop := flag.Bool("stop", false, "Stop the session after streaming")
	watch := flag.Bool("watch", true, "Print live transcript updates")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	speaker, err := models.ParseSpeaker(*speakerName)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid speaker")
	}

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open audio file")
	}
	defer f.Close()

	format, dataLen, err := readWAVHeader(f)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read WAV header")
	}
	channels := audio.MonoChannels
	contentType := audio.DefaultMeFormat
	if speaker == models.SpeakerThem {
		channels = audio.CaptureChannels
		contentType = "application/octet-stream"
	}
	if err := format.validate(audio.SampleRate, channels); err != nil {
		log.Fatal().Err(err).Msg("Unsupported WAV file")
	}
	log.Info().
		Uint16("channels", format.Channels).
		Uint32("sampleRate", format.SampleRate).
		Uint32("bytes", dataLen).
		Msg("WAV file loaded")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	base := strings.TrimRight(*server, "/")
	client := &http.Client{Timeout: 10 * time.Second}

	if *watch {
		go watchTranscripts(ctx, base)
	}

	if *start {
		body, _ := json.Marshal(map[string]string{"languageCode": *language})
		resp, err := post(ctx, client, base+"/v1/session/start", "application/json", body)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to start session")
		}
		log.Info().Str("response", strings.TrimSpace(resp)).Msg("Session started")
	}

	chunkSize := audio.FrameSizeFor(audio.SampleRate, audio.BytesPerSample*channels, chunkInterval)
	chunk := make([]byte, chunkSize)
	data := io.LimitReader(f, int64(dataLen))
	ticker := time.NewTicker(chunkInterval)
	defer ticker.Stop()

	var sent, total int
	began := time.Now()
	for {
		n, err := io.ReadFull(data, chunk)
		if n > 0 {
			if _, perr := post(ctx, client, base+"/v1/session/frames/"+string(speaker), contentType, chunk[:n]); perr != nil {
				log.Fatal().Err(perr).Msg("Failed to send frame")
			}
			sent++
			total += n
			if sent%10 == 0 {
				log.Debug().Int("chunks", sent).Int("bytes", total).Msg("Streaming")
			}
		}
		if err != nil {
			break
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("Interrupted")
			return
		case <-ticker.C:
		}
	}
	log.Info().Int("chunks", sent).Int("bytes", total).Dur("elapsed", time.Since(began)).Msg("Finished streaming")

	// Leave time for the last turn's debounce before stopping or exiting.
	select {
	case <-ctx.Done():
	case <-time.After(3 * time.Second):
	}

	if *stop {
		resp, err := post(context.Background(), client, base+"/v1/session/stop", "application/json", nil)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to stop session")
		}
		log.Info().Str("response", strings.TrimSpace(resp)).Msg("Session stopped")
	}
}

func post(ctx context.Context, client *http.Client, url, contentType string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

func watchTranscripts(ctx context.Context, base string) {
	url := "ws" + strings.TrimPrefix(base, "http") + "/v1/transcripts/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("Transcript stream unavailable")
		return
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var u models.Update
		if err := conn.ReadJSON(&u); err != nil {
			return
		}
		if u.IsPartial {
			fmt.Printf("\r%-5s … %s", u.Speaker.Label(), u.Text)
			continue
		}
		fmt.Printf("\r%-5s » %s\n", u.Speaker.Label(), u.Text)
	}
}
