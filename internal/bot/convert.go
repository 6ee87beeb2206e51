package bot

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-gif-bot/internal/metrics"
	"github.com/tbourn/go-gif-bot/internal/services"
)

const genericFailure = "Image conversion failed!"

// handleConvert runs the context-menu flow: defer, validate the source,
// convert or pass through, deliver, then record the event. Recording happens
// only after a successful delivery and its failure is logged, never shown.
func (b *Bot) handleConvert(ctx context.Context, i *discordgo.Interaction, target *discordgo.Message) {
	lg := zerolog.Ctx(ctx)
	metrics.Commands.WithLabelValues("convert_to_gif").Inc()

	if err := b.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		lg.Error().Err(err).Msg("defer interaction response")
		return
	}

	actor, ok := actorOf(i)
	if !ok {
		b.editError(ctx, i, genericFailure)
		return
	}

	src, err := b.resolveSource(ctx, target)
	if err != nil {
		if isValidationError(err) {
			metrics.Conversions.WithLabelValues("unknown", "rejected").Inc()
			lg.Info().Err(err).Msg("source rejected")
			b.editError(ctx, i, capitalize(err.Error()))
			return
		}
		lg.Error().Err(err).Msg("resolve source")
		b.editError(ctx, i, genericFailure)
		return
	}

	// Only sources that passed validation spend a token.
	key := fmt.Sprintf("user:%d", actor.ID)
	if !b.limiter.Allow(key) {
		wait := int(math.Ceil(b.limiter.Reserve(key).Seconds()))
		if wait < 1 {
			wait = 1
		}
		metrics.Conversions.WithLabelValues("unknown", "rate_limited").Inc()
		lg.Info().Int("retry_after_s", wait).Msg("conversion rate limited")
		b.editError(ctx, i, fmt.Sprintf("You are converting too fast. Try again in %ds.", wait))
		return
	}

	res, err := b.converter.Convert(ctx, src)
	if err != nil {
		lg.Error().Err(err).Str("file", src.FileName).Str("url", src.URL).Msg("conversion failed")
		b.editError(ctx, i, genericFailure)
		return
	}

	if err := b.deliver(i, target, res); err != nil {
		lg.Error().Err(err).Msg("deliver result")
		b.editError(ctx, i, genericFailure)
		return
	}

	var size *int64
	if res.SourceSize > 0 {
		v := res.SourceSize
		size = &v
	}
	if _, err := b.store.RecordConversion(ctx, actor, b.guildInfo(ctx, i.GuildID), size, res.ConversionType); err != nil {
		lg.Warn().Err(err).Str("type", res.ConversionType).Msg("record conversion failed")
		return
	}
	lg.Info().Str("type", res.ConversionType).Str("file", res.FileName).Msg("conversion delivered")
}

// deliver edits the deferred response with the result card. Converted GIFs
// are attached and referenced as attachment://; pass-through results reuse
// the source URL.
func (b *Bot) deliver(i *discordgo.Interaction, target *discordgo.Message, res *services.Result) error {
	var author *discordgo.User
	if target != nil {
		author = target.Author
	}
	edit := &discordgo.WebhookEdit{}
	imageURL := res.URL
	if !res.PassThrough || res.URL == "" {
		imageURL = "attachment://" + res.FileName
		edit.Files = []*discordgo.File{{
			Name:        res.FileName,
			ContentType: "image/gif",
			Reader:      bytes.NewReader(res.Data),
		}}
	}
	embeds := []*discordgo.MessageEmbed{conversionEmbed(b.self(), author, res.FileName, imageURL)}
	edit.Embeds = &embeds
	_, err := b.api.InteractionResponseEdit(i, edit)
	return err
}

func (b *Bot) editError(ctx context.Context, i *discordgo.Interaction, msg string) {
	embeds := []*discordgo.MessageEmbed{errorEmbed(msg)}
	if _, err := b.api.InteractionResponseEdit(i, &discordgo.WebhookEdit{Embeds: &embeds}); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("edit interaction response")
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if c := s[0]; c >= 'a' && c <= 'z' {
		return string(c-'a'+'A') + s[1:]
	}
	return s
}
