package telegram

import (
	"context"
	"fmt"
	"io"

	"github.com/sandevgo/localrag/internal/config"
	"github.com/sandevgo/localrag/internal/core"
	"github.com/sandevgo/localrag/internal/service/loader"
	"github.com/sandevgo/localrag/pkg/log"
	tele "gopkg.in/telebot.v3"
)

const baseContextKey = "base_context"

type Agent interface {
	Run(ctx context.Context, sessionID, input string, onUpdate func(core.Message)) (string, error)
}

type DocumentIndex interface {
	IndexSource(ctx context.Context, doc core.Document) (string, bool, error)
}

type DocumentLoader interface {
	FromBytes(ctx context.Context, name, source string, raw []byte) (core.Document, bool, error)
}

type Bot struct {
	bot    *tele.Bot
	cfg    *config.TelegramConfig
	agent  Agent
	router core.CmdRouter
	index  DocumentIndex
	loader DocumentLoader
	sender *sender
}

func NewBot(
	ctx context.Context,
	cfg *config.TelegramConfig,
	agent Agent,
	router core.CmdRouter,
	index DocumentIndex,
	loader DocumentLoader,
) (*Bot, error) {
	pref := tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	bot := &Bot{
		bot:    b,
		cfg:    cfg,
		agent:  agent,
		router: router,
		index:  index,
		loader: loader,
		sender: newSender(b),
	}

	// Use context from Signal with logger
	b.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			c.Set(baseContextKey, ctx)
			return next(c)
		}
	})

	// Everyone except the owner and the allow list is ignored
	b.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if c.Sender() == nil || !cfg.Allowed(c.Sender().ID) {
				return nil
			}
			return next(c)
		}
	})

	b.Handle(tele.OnText, bot.handleMessage)
	if cfg.IndexUploads {
		b.Handle(tele.OnDocument, bot.handleDocument)
	}

	return bot, nil
}

func (b *Bot) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	logger.Info().Msg("starting telegram bot")

	if err := b.bot.SetCommands(b.menu()); err != nil {
		logger.Warn().Err(err).Msg("failed to register bot commands")
	}

	b.bot.Start()
	return nil
}

func (b *Bot) Shutdown(ctx context.Context) error {
	b.bot.Stop()
	return nil
}

func (b *Bot) menu() []tele.Command {
	cmds := b.router.ListCommands()
	menu := make([]tele.Command, 0, len(cmds))
	for _, cmd := range cmds {
		menu = append(menu, tele.Command{Text: cmd.Name(), Description: cmd.Description()})
	}
	return menu
}

func (b *Bot) handleMessage(c tele.Context) error {
	ctx := c.Get(baseContextKey).(context.Context)
	logger := log.FromCtx(ctx)
	sessionID := fmt.Sprintf("telegram-%d", c.Chat().ID)

	if reply, ok := b.router.Execute(ctx, sessionID, c.Text()); ok {
		return b.sender.sendMarkdown(ctx, c.Chat(), reply, true)
	}

	_ = c.Notify(tele.Typing)

	_, err := b.agent.Run(ctx, sessionID, c.Text(), func(msg core.Message) {
		if msg.Content == "" {
			return
		}
		if err := b.sender.sendMarkdown(ctx, c.Chat(), msg.Content, false); err != nil {
			logger.Error().Err(err).Msg("failed to send telegram message")
		}
	})
	if err != nil {
		logger.Error().Err(err).Msg("agent run failed")
		return c.Send(fmt.Sprintf("error: %v", err))
	}

	return nil
}

// handleDocument indexes an uploaded file. Uploading a file with the same
// name again replaces the earlier copy.
func (b *Bot) handleDocument(c tele.Context) error {
	ctx := c.Get(baseContextKey).(context.Context)
	file := c.Message().Document
	if file == nil {
		return nil
	}
	logger := log.FromCtx(ctx).With().Str("file", file.FileName).Logger()

	if !loader.Supported(file.FileName) {
		return c.Send("Only .txt, .md and .html files can be indexed.")
	}
	if file.FileSize > loader.DefaultMaxFileSize {
		return c.Send(fmt.Sprintf("%s is larger than %d MB.", file.FileName, loader.DefaultMaxFileSize>>20))
	}

	_ = c.Notify(tele.UploadingDocument)

	rc, err := b.bot.File(&file.File)
	if err != nil {
		logger.Error().Err(err).Msg("failed to download upload")
		return c.Send(fmt.Sprintf("error: %v", err))
	}
	defer rc.Close()

	raw, err := io.ReadAll(io.LimitReader(rc, loader.DefaultMaxFileSize+1))
	if err != nil {
		logger.Error().Err(err).Msg("failed to read upload")
		return c.Send(fmt.Sprintf("error: %v", err))
	}

	doc, ok, err := b.loader.FromBytes(ctx, file.FileName, "telegram:"+file.FileName, raw)
	if err == nil && ok {
		var id string
		id, ok, err = b.index.IndexSource(ctx, doc)
		if err == nil && ok {
			logger.Info().Str("doc_id", id).Msg("upload indexed")
			reply := fmt.Sprintf("Indexed **%s** as `%s`.", file.FileName, id)
			return b.sender.sendMarkdown(ctx, c.Chat(), reply, true)
		}
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to index upload")
		return c.Send(fmt.Sprintf("error: %v", err))
	}
	return c.Send(fmt.Sprintf("Nothing to index in %s.", file.FileName))
}
