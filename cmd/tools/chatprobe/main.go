package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/talknest/backend/internal/handler/chat"
	"github.com/zhouzirui/talknest/backend/internal/handler/upload"
)

func main() {
	server := flag.String("server", "http://localhost:3000", "relay base URL")
	name := flag.String("name", "", "display name to announce")
	message := flag.String("msg", "", "chat message to send")
	filePath := flag.String("file", "", "file to upload and share as a media message")
	listen := flag.Duration("listen", 3*time.Second, "how long to print broadcasts before exiting")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := probe(logger, *server, *name, *message, *filePath, *listen); err != nil {
		logger.Fatal("probe failed", zap.Error(err))
	}
}

func probe(logger *zap.Logger, server, name, message, filePath string, listen time.Duration) error {
	base, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return fmt.Errorf("parse server url: %w", err)
	}

	wsURL := *base
	wsURL.Scheme = "ws"
	if base.Scheme == "https" {
		wsURL.Scheme = "wss"
	}
	wsURL.Path += "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL.String(), err)
	}
	defer conn.Close()
	logger.Info("connected", zap.String("url", wsURL.String()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		printBroadcasts(logger, conn)
	}()

	if name != "" {
		if err := send(conn, chat.EventSetUsername, name); err != nil {
			return err
		}
	}
	if message != "" {
		if err := send(conn, chat.EventChatMessage, message); err != nil {
			return err
		}
	}
	if filePath != "" {
		uploaded, err := uploadFile(base.String(), filePath)
		if err != nil {
			return err
		}
		logger.Info("uploaded", zap.String("url", uploaded.URL), zap.String("type", uploaded.Type))
		if err := send(conn, chat.EventMediaMessage, chat.MediaPayload{URL: uploaded.URL, Type: uploaded.Type}); err != nil {
			return err
		}
	}

	select {
	case <-done:
	case <-time.After(listen):
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		<-done
	}
	return nil
}

func send(conn *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	if err := conn.WriteJSON(chat.Frame{Event: event, Data: raw}); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}

func printBroadcasts(logger *zap.Logger, conn *websocket.Conn) {
	for {
		var frame chat.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Debug("read stopped", zap.Error(err))
			}
			return
		}
		logger.Info("broadcast", zap.String("event", frame.Event), zap.ByteString("data", frame.Data))
	}
}

func uploadFile(server, path string) (upload.Response, error) {
	f, err := os.Open(path)
	if err != nil {
		return upload.Response{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return upload.Response{}, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return upload.Response{}, fmt.Errorf("read %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return upload.Response{}, err
	}

	resp, err := http.Post(server+"/upload", writer.FormDataContentType(), body)
	if err != nil {
		return upload.Response{}, fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var failure struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return upload.Response{}, errors.New("upload rejected: " + resp.Status + " " + failure.Error)
	}

	var out upload.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return upload.Response{}, fmt.Errorf("decode upload response: %w", err)
	}
	return out, nil
}
