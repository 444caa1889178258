package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/lrhodin/floatinbox/pkg/attachcodec"
	"github.com/lrhodin/floatinbox/pkg/courier"
	"github.com/lrhodin/floatinbox/pkg/courier/memnet"
	"github.com/lrhodin/floatinbox/pkg/courier/natsjs"
	"github.com/lrhodin/floatinbox/pkg/inbox"
	"github.com/lrhodin/floatinbox/pkg/objstore"
)

// connect builds the protocol directory and object store from config.
// Credentials are resolved here, once; components only get handles.
func connect(ctx *cli.Context, cfg *Config) (courier.Directory, objstore.Store, func(), error) {
	if ctx.Bool("local") {
		return memnet.NewNetwork().Login(cfg.Handle), objstore.NewMemStore(), func() {}, nil
	}
	transport, err := natsjs.Dial(cfg.NATS.URL, cfg.Handle, log.Logger)
	if err != nil {
		return nil, nil, nil, err
	}
	store := objstore.NewHTTPStore(cfg.Storage.Endpoint, cfg.Storage.Token)
	return transport, store, transport.Close, nil
}

func runSend(ctx *cli.Context) error {
	cfg := getConfig(ctx)
	peer := ctx.Args().Get(0)
	text := strings.Join(ctx.Args().Slice()[1:], " ")
	if peer == "" {
		return fmt.Errorf("usage: inboxctl send <peer> <text>")
	}

	dir, store, closeFn, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	codec := &attachcodec.Codec{}
	pipeline := inbox.NewPipeline(codec, store, cfg.Storage.Gateway)
	composer := inbox.NewComposer(nil, dir, peer, pipeline)
	created, err := composer.Send(ctx.Context, text, ctx.String("file"))
	if err != nil {
		return err
	}
	if created != nil {
		log.Info().Str("peer", created.PeerAddress()).Msg("Started new conversation")
	}
	fmt.Println("sent")
	return nil
}

func runOpen(cliCtx *cli.Context) error {
	cfg := getConfig(cliCtx)
	peer := cliCtx.Args().First()
	if peer == "" {
		return fmt.Errorf("usage: inboxctl open <peer>")
	}

	ctx, stop := signal.NotifyContext(cliCtx.Context, os.Interrupt)
	defer stop()

	dir, store, closeFn, err := connect(cliCtx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	conv, err := dir.NewConversation(ctx, peer)
	if err != nil {
		return fmt.Errorf("failed to open conversation: %w", err)
	}

	codec := &attachcodec.Codec{}
	resolver, err := inbox.NewResolver(codec, cfg.CacheDir)
	if err != nil {
		return err
	}
	defer resolver.Close()

	pipeline := inbox.NewPipeline(codec, store, cfg.Storage.Gateway)
	composer := inbox.NewComposer(conv, dir, peer, pipeline)
	receipts := inbox.NewReceiptEmitter(conv)
	view := &viewPrinter{self: cfg.Handle, resolver: resolver}

	session := inbox.NewSession(conv,
		inbox.OnChange(receipts.Observe),
		inbox.OnChange(func(ctx context.Context, store *inbox.Store) {
			go func() {
				resolver.ResolveAll(ctx, store.Messages())
				view.render(ctx, store)
			}()
		}),
	)

	go func() {
		if err := session.Run(ctx); err != nil {
			log.Err(err).Msg("Conversation session ended")
			stop()
		}
	}()

	if cfg.DropDir != "" {
		watcher, err := watchDropDir(ctx, cfg.DropDir, composer)
		if err != nil {
			return err
		}
		defer watcher.Close()
	}

	fmt.Printf("Connected to %s. Type a message, /reply <n> <text>, /react <n> <emoji>, or /quit.\n", peer)
	return readInput(ctx, session, composer)
}

// watchDropDir uploads any file created in dir to the conversation. Stands
// in for a drag-and-drop surface.
func watchDropDir(ctx context.Context, dir string, composer *inbox.Composer) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create drop dir watcher: %w", err)
	}
	if err = watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Create) {
					continue
				}
				log.Info().Str("path", ev.Name).Msg("Uploading dropped file")
				if _, err := composer.Send(ctx, "", ev.Name); err != nil {
					log.Err(err).Str("path", ev.Name).Msg("Failed to upload dropped file")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("Drop dir watcher error")
			}
		}
	}()
	return watcher, nil
}

func readInput(ctx context.Context, session *inbox.Session, composer *inbox.Composer) error {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := handleLine(ctx, session, composer, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				fmt.Println("! " + err.Error())
			}
		}
	}
}

var errQuit = errors.New("quit")

func handleLine(ctx context.Context, session *inbox.Session, composer *inbox.Composer, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		_, err := composer.Send(ctx, line, "")
		return err
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit":
		return errQuit
	case "/reply":
		if len(fields) < 3 {
			return fmt.Errorf("usage: /reply <n> <text>")
		}
		msg, err := messageAt(session, fields[1])
		if err != nil {
			return err
		}
		composer.SetReplyTarget(msg)
		_, err = composer.Send(ctx, strings.Join(fields[2:], " "), "")
		return err
	case "/react":
		if len(fields) != 3 {
			return fmt.Errorf("usage: /react <n> <emoji>")
		}
		msg, err := messageAt(session, fields[1])
		if err != nil {
			return err
		}
		return composer.React(ctx, msg, fields[2])
	default:
		return fmt.Errorf("unknown command %s", fields[0])
	}
}

func messageAt(session *inbox.Session, arg string) (*inbox.Message, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return nil, fmt.Errorf("bad message number %q", arg)
	}
	msgs := session.Store().Messages()
	if n < 1 || n > len(msgs) {
		return nil, fmt.Errorf("no message #%d", n)
	}
	return msgs[n-1], nil
}

// viewPrinter prints the reconciled view incrementally: new messages as
// lines, reaction and read-state changes as updates to earlier lines.
type viewPrinter struct {
	self     string
	resolver *inbox.Resolver

	mu   sync.Mutex
	seen map[string]string
}

func (v *viewPrinter) render(ctx context.Context, store *inbox.Store) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.seen == nil {
		v.seen = make(map[string]string)
	}
	for i, msg := range store.Messages() {
		line := v.formatLine(ctx, store, i+1, msg)
		if prev, ok := v.seen[msg.ID]; !ok {
			fmt.Println(line)
		} else if prev != line {
			fmt.Println("* " + line)
		}
		v.seen[msg.ID] = line
	}
}

func (v *viewPrinter) formatLine(ctx context.Context, store *inbox.Store, n int, msg *inbox.Message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%d] %s %s", n, msg.SentAt.Local().Format("15:04"), msg.Sender)
	if msg.IsRead {
		sb.WriteString(" ✓✓")
	} else {
		sb.WriteString(" ✓")
	}
	sb.WriteString(": ")
	switch msg.Kind {
	case inbox.KindRemoteAttachment:
		if uri := v.resolver.Resolve(ctx, msg); uri != "" {
			sb.WriteString(uri)
		} else if msg.Fallback != "" {
			sb.WriteString(msg.Fallback)
		} else {
			sb.WriteString("(attachment unavailable)")
		}
	default:
		if msg.ReplyTo != "" {
			// Dangling references just render without context.
			if original, ok := store.Original(msg); ok {
				fmt.Fprintf(&sb, "(re %q) ", original.Text)
			}
		}
		sb.WriteString(msg.Text)
	}
	if len(msg.Reactions) > 0 {
		sb.WriteString("  " + strings.Join(msg.Reactions, " "))
	}
	return sb.String()
}
