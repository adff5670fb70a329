// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

// Package client serves the monitor's browser websocket.  Each
// connection gets its own redis subscription and a rate-limited writer
// that prefers status traffic over show frames.
package client

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"log"
	"math"
	"net/http"
	"net/url"
	"path"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gravwave/gw-live/data"
	"github.com/gravwave/gw-live/live"
	"github.com/gravwave/gw-live/live/message"

	"github.com/go-redis/redis"
	"github.com/gorilla/websocket"
)

var nClients uint64

type ClientHandler struct {
	Redis *redis.Client
	Addr  string
	// MaxShowRate caps show frame delivery per second per client.
	// Status and command replies are never dropped.
	MaxShowRate float64
	Srv         *http.Server

	websocket.Upgrader
}

// clientConn bundles the per-connection state threaded through the
// pump goroutines.
type clientConn struct {
	h          *ClientHandler
	ws         *websocket.Conn
	sub        *redis.PubSub
	subClient  *redis.Client
	nickname   string
	namespaces []string

	resp     chan *message.Msg
	frames   chan []byte // rate-limited show traffic
	priority chan []byte
}

func (h *ClientHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	authSession, _ := live.Store.Get(r, "auth-session")
	namespaces := sessionNamespaces(authSession.Values)
	nickname := sessionNickname(authSession.Values)

	log.Println("starting client ws serve for", nickname, "with namespaces", namespaces)
	ws, err := h.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	subClient := redis.NewClient(&redis.Options{Addr: h.Addr})
	var broadcasts []string
	for _, name := range namespaces {
		broadcasts = append(broadcasts, name+" broadcast")
	}
	sub := subClient.Subscribe(broadcasts...)
	if _, err := sub.Receive(); err != nil {
		log.Println("PubSub.Receive():", err)
		subClient.Close()
		return
	}

	c := &clientConn{
		h:          h,
		ws:         ws,
		sub:        sub,
		subClient:  subClient,
		nickname:   nickname,
		namespaces: namespaces,
		resp:       make(chan *message.Msg),
		frames:     make(chan []byte, 100),
		priority:   make(chan []byte, 10000),
	}

	ctx, cancel := context.WithCancel(context.Background())
	go c.runCommands(ctx, cancel)
	go c.collect(ctx, sub.ChannelSize(10))
	go c.sampleStatus(ctx)
	go c.write(ctx)
}

// sessionNamespaces pulls the data namespaces granted to the user out
// of the auth session, falling back to the public namespace.
func sessionNamespaces(values map[interface{}]interface{}) []string {
	var namespaces []string
	if appMetadata, ok := values["app_metadata"].(map[string]interface{}); ok {
		if ns, ok := appMetadata["data namespaces"].([]interface{}); ok {
			for _, name := range ns {
				if name, ok := name.(string); ok {
					namespaces = append(namespaces, name)
				}
			}
		}
	}
	if len(namespaces) == 0 {
		namespaces = []string{"everyone"}
	}
	return namespaces
}

func sessionNickname(values map[interface{}]interface{}) string {
	if nick, ok := values["nickname"].(string); ok {
		return nick
	}
	return "nobody"
}

// runCommands drives the websocket command loop.  The connection's
// context is cancelled when the socket closes.
func (c *clientConn) runCommands(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()

	for cmd := range message.ReceiveWsCmds(ctx, c.ws) {
		c.execute(ctx, cmd)
	}
}

// collect merges command replies and broadcast traffic into the writer
// queues, sorting show frames away from the priority lane.
func (c *clientConn) collect(ctx context.Context, broadcast <-chan *redis.Message) {
	atomic.AddUint64(&nClients, 1)
	defer func() {
		log.Println("stopped client ws serve")
		time.Sleep(time.Second)
		atomic.AddUint64(&nClients, ^uint64(0))
		if c.h.Srv != nil && atomic.LoadUint64(&nClients) == 0 {
			log.Println("no clients, shutting down")
			c.h.Srv.Shutdown(context.Background())
		}
	}()
	defer c.subClient.Close()
	defer c.sub.Close()

	var buf []byte
	var msg *message.Msg
	for {
		select {
		case msg = <-c.resp:
			if msg == nil {
				continue
			}
			var err error
			buf, err = json.Marshal(msg)
			if err != nil {
				log.Println(err)
				continue
			}
		case redisMsg := <-broadcast:
			buf = []byte(redisMsg.Payload)
			msg = &message.Msg{}
			json.Unmarshal(buf, msg)
		case <-ctx.Done():
			return
		}

		channel := c.priority
		switch msg.Type {
		case "show frame", "stream status":
			channel = c.frames
		}

		select {
		case channel <- buf:
		default:
		}
	}
}

// sampleStatus publishes host health and the number of live analysis
// streams visible to this client once a second.
func (c *clientConn) sampleStatus(ctx context.Context) {
	for {
		msg := &message.Msg{
			Type:     "system status",
			Metadata: make(map[string]string),
		}

		if usage, ok := cpuUsage(); ok {
			msg.Metadata["usage"] = strconv.FormatFloat(usage, 'f', -1, 64)
		}

		memStats := &runtime.MemStats{}
		runtime.ReadMemStats(memStats)
		msg.Metadata["mem alloc"] = strconv.FormatUint(uint64(uint32(memStats.Alloc)/(2<<20)), 10)
		msg.Metadata["mem sys"] = strconv.FormatUint(uint64(uint32(memStats.Sys)/(2<<20)), 10)

		streams := 0
		for _, namespace := range c.namespaces {
			streams += len(c.h.Redis.PubSubChannels(namespace + " stream cmd *").Val())
		}
		msg.Metadata["streams"] = strconv.Itoa(streams)

		select {
		case <-ctx.Done():
			return
		default:
			if buf, err := json.Marshal(msg); err == nil {
				c.priority <- buf
			}
		}
	}
}

// write drains the queues into the websocket.  Priority traffic always
// goes out; show frames are dropped once the decaying rate estimate
// exceeds MaxShowRate.
func (c *clientConn) write(ctx context.Context) {
	var buf []byte
	var rate float64
	last := time.Now()
	for {
		now := time.Now()
		alpha := now.Sub(last).Seconds()
		last = now
		if alpha > 1 {
			alpha = 1
		}
		rate *= 1 - alpha

		select {
		case buf = <-c.priority:
			// Stale frames are useless once priority traffic backs up.
			for len(c.frames) > 0 {
				<-c.frames
			}
		default:
			select {
			case buf = <-c.priority:
			case buf = <-c.frames:
				if rate < c.h.MaxShowRate {
					rate += 1
				} else {
					buf = nil
				}
			case <-ctx.Done():
				return
			}
		}

		if buf != nil {
			if err := c.ws.WriteMessage(websocket.TextMessage, buf); err != nil {
				log.Println(err)
			}
		}
	}
}

func (c *clientConn) execute(ctx context.Context, cmd *message.Cmd) {
	log.Println("client:", cmd.Command)

	switch cmd.Command {
	case "get nickname":
		c.getNickname()
	case "list streams":
		c.listStreams()
	case "stream cmd":
		c.streamCmd(cmd)
	case "stream sub":
		c.streamSub(cmd)
	case "stream unsub":
		c.streamUnsub(cmd)
	case "ls":
		c.listResourceRuns(ctx, cmd)
	case "get meta":
		c.getRunHeader(ctx, cmd)
	case "play run":
		c.playRun(ctx, cmd)
	default:
		log.Printf("unknown command\n%v", cmd)
	}
}

func (c *clientConn) getNickname() {
	msg := &message.Msg{
		Type:     "nickname",
		Metadata: make(map[string]string),
	}
	msg.Metadata["name"] = c.nickname
	c.resp <- msg
}

func (c *clientConn) listStreams() {
	for _, namespace := range c.namespaces {
		for _, stream := range c.h.Redis.PubSubChannels(namespace + " stream cmd *").Val() {
			msg := &message.Msg{
				Type:     "stream announce",
				Metadata: make(map[string]string),
			}
			msg.Metadata["name"] = strings.TrimPrefix(stream, namespace+" stream cmd ")
			c.resp <- msg
		}
	}
}

// streamCmd forwards a command to an analysis stream's manager.
func (c *clientConn) streamCmd(cmd *message.Cmd) {
	stream := cmd.Metadata["stream"]
	cmd.Command = cmd.Metadata["stream cmd"]
	delete(cmd.Metadata, "stream")
	delete(cmd.Metadata, "stream cmd")
	cmdBytes, err := json.Marshal(cmd)
	if err != nil {
		log.Println(err)
		return
	}

	for _, namespace := range c.namespaces {
		c.h.Redis.Publish(namespace+" stream cmd "+stream, string(cmdBytes))
	}
}

func (c *clientConn) streamSub(cmd *message.Cmd) {
	stream := cmd.Metadata["stream"]
	for _, namespace := range c.namespaces {
		channel := namespace + " stream " + stream
		log.Println("sub to", channel)
		c.sub.Subscribe(channel)
	}

	msg := &message.Msg{
		Type:     "stream sub",
		Metadata: make(map[string]string),
	}
	msg.Metadata["stream"] = stream
	c.resp <- msg
}

func (c *clientConn) streamUnsub(cmd *message.Cmd) {
	stream := cmd.Metadata["stream"]
	for _, namespace := range c.namespaces {
		channel := namespace + " stream " + stream
		log.Println("unsub from", channel)
		c.sub.Unsubscribe(channel)
	}

	msg := &message.Msg{
		Type:     "stream unsub",
		Metadata: make(map[string]string),
	}
	msg.Metadata["stream"] = stream
	c.resp <- msg
}

// listResourceRuns answers an "ls" command with the run files found
// under a storage URL.
func (c *clientConn) listResourceRuns(ctx context.Context, cmd *message.Cmd) {
	go func() {
		msg := &message.Msg{
			Type:     "run list",
			Metadata: make(map[string]string),
		}
		msg.Metadata["name"] = cmd.Metadata["name"]
		msg.Metadata["status"] = "failure"
		msg.Metadata["url"] = cmd.Metadata["url"]
		defer func() { c.resp <- msg }()

		runs, err := data.ListResourceRuns(ctx, cmd.Metadata["url"], cmd.Metadata["credentials"])
		if err != nil {
			msg.Payload = []byte(err.Error())
			return
		}
		msg.Payload, err = json.Marshal(runs)
		if err != nil {
			msg.Payload = []byte(err.Error())
			return
		}

		msg.Metadata["status"] = "success"
	}()
}

func (c *clientConn) getRunHeader(ctx context.Context, cmd *message.Cmd) {
	go func() {
		msg := &message.Msg{
			Type:     "run meta",
			Metadata: make(map[string]string),
		}
		msg.Metadata["status"] = "failure"
		msg.Metadata["url"] = cmd.Metadata["url"]
		defer func() { c.resp <- msg }()

		reader, err := data.GetReader(ctx, cmd.Metadata["url"], cmd.Metadata["credentials"])
		if err != nil {
			msg.Payload = []byte(err.Error())
			return
		}

		// The header record precedes the first block.
		reader.Next()
		msg.Payload, err = json.Marshal(reader.Header())
		if err != nil {
			msg.Payload = []byte(err.Error())
			return
		}

		reader.Close()

		msg.Metadata["status"] = "success"
	}()
}

// playRun replays an archived run file through a fresh stream manager,
// looping back to the start when the file is exhausted.
func (c *clientConn) playRun(ctx context.Context, cmd *message.Cmd) {
	msg := &message.Msg{
		Type:     "player failure",
		Metadata: make(map[string]string),
	}
	msg.Metadata["url"] = cmd.Metadata["url"]
	log.Println("url:", cmd.Metadata["url"])

	reader, err := data.GetReader(ctx, cmd.Metadata["url"], cmd.Metadata["credentials"])
	if err != nil {
		msg.Payload = []byte(err.Error())
		c.resp <- msg
		return
	}

	thisUrl, err := url.Parse(cmd.Metadata["url"])
	streamName := path.Base(thisUrl.Path)
	var cancel context.CancelFunc
	ctx, cancel = context.WithCancel(ctx)

	go func() {
		defer cancel()

		input := make(chan *data.Block)
		go func() {
			defer close(input)

			log.Println("player reader for", thisUrl, "started")
			defer log.Println("player reader for", thisUrl, "stopped")

			for {
				for block := range reader.ScanBlocks(1000) {
					select {
					case input <- block:
					case <-ctx.Done():
						reader.Close()
						return
					}
				}
				reader.Close()
				reader, err = data.GetReader(ctx, cmd.Metadata["url"], cmd.Metadata["credentials"])
				if err != nil {
					msg.Payload = []byte(err.Error())
					c.resp <- msg
					return
				}
			}
		}()

		ops := live.BuildPlayer(c.namespaces[len(c.namespaces)-1], streamName, c.h.Redis, c.h.Addr)
		if ops != nil {
			log.Println("player for", thisUrl, "started")
			defer log.Println("player for", thisUrl, "stopped")
			ops.Sink(input)
		}
	}()
}

// cpuUsage samples /proc/stat twice a second apart and reports the
// busy fraction.
func cpuUsage() (float64, bool) {
	idle0, total0 := cpuTicks()
	time.Sleep(time.Second)
	idle1, total1 := cpuTicks()

	idleTicks := float64(idle1 - idle0)
	totalTicks := float64(total1 - total0)
	usage := (totalTicks - idleTicks) / totalTicks
	return usage, !math.IsNaN(usage)
}

func cpuTicks() (idle, total uint64) {
	contents, err := ioutil.ReadFile("/proc/stat")
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(contents), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] != "cpu" {
			continue
		}
		for i := 1; i < len(fields); i++ {
			val, err := strconv.ParseUint(fields[i], 10, 64)
			if err != nil {
				log.Println("parsing /proc/stat:", err)
			}
			total += val
			if i == 4 { // idle is the 5th field in the cpu line
				idle = val
			}
		}
		return
	}
	return
}
