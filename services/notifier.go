package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"pongmatch/models"
)

const (
	MessageGameStart        = "game_start"
	MessageChallenge        = "challenge"
	MessageTournamentStart  = "tournament_start"
	MessageTournamentUpdate = "tournament_update"
	MessageTournamentEnd    = "tournament_end"
)

type GameStartMessage struct {
	Type           string   `json:"type"`
	GameID         string   `json:"game_id"`
	PlayerPosition string   `json:"player_position"`
	OpponentName   string   `json:"opponent_name"`
	GameDetails    GameView `json:"game_details"`
}

type ChallengeMessage struct {
	Type         string   `json:"type"`
	OpponentName string   `json:"opponent_name"`
	GameID       string   `json:"game_id"`
	GameDetails  GameView `json:"game_details"`
}

type TournamentMessage struct {
	Type              string         `json:"type"`
	TournamentID      string         `json:"tournament_id"`
	TournamentDetails TournamentView `json:"tournament_details"`
}

// Sender is a live connection a message can be pushed to.
type Sender interface {
	Send(v any) error
}

type relayEnvelope struct {
	ConnID   string          `json:"conn_id"`
	PlayerID string          `json:"player_id"`
	Payload  json.RawMessage `json:"payload"`
}

// Notifier delivers player notifications. A player connected to this
// instance gets the message directly, one connected elsewhere gets it
// through the owning instance's Redis channel, everyone else finds it in
// their outbox on the next connect.
type Notifier struct {
	DB         *gorm.DB
	Redis      *redis.Client
	InstanceID string

	mu    sync.RWMutex
	conns map[string]Sender
}

func NewNotifier(db *gorm.DB, rdb *redis.Client, instanceID string) *Notifier {
	return &Notifier{
		DB:         db,
		Redis:      rdb,
		InstanceID: instanceID,
		conns:      map[string]Sender{},
	}
}

func instanceChannel(instanceID string) string { return "matchmaker:instance:" + instanceID }

// Connect binds conn to the player, then flushes the outbox to it.
func (n *Notifier) Connect(ctx context.Context, playerName string, conn Sender) (string, error) {
	connID := uuid.NewString()
	channel := n.InstanceID + "/" + connID

	// registered before the channel is published so a concurrent Notify
	// never sees a channel without its connection
	n.mu.Lock()
	n.conns[connID] = conn
	n.mu.Unlock()

	res := n.DB.WithContext(ctx).Model(&models.Player{}).Where("name = ?", playerName).Update("channel_name", channel)
	if res.Error == nil && res.RowsAffected == 0 {
		res.Error = eris.Wrapf(ErrNotFound, "player %s", playerName)
	}
	if res.Error != nil {
		n.mu.Lock()
		delete(n.conns, connID)
		n.mu.Unlock()
		return "", eris.Wrapf(res.Error, "bind channel for %s", playerName)
	}

	log.Info().Str("player", playerName).Str("channel", channel).Msg("[NOTIFY] player connected")
	if err := n.Flush(ctx, playerName); err != nil {
		log.Error().Err(err).Str("player", playerName).Msg("[NOTIFY] outbox flush failed")
	}
	return connID, nil
}

// Disconnect unbinds connID. A newer connection of the same player is kept.
func (n *Notifier) Disconnect(ctx context.Context, playerName, connID string) {
	n.mu.Lock()
	delete(n.conns, connID)
	n.mu.Unlock()

	err := n.DB.WithContext(ctx).Model(&models.Player{}).
		Where("name = ? AND channel_name = ?", playerName, n.InstanceID+"/"+connID).
		Update("channel_name", nil).Error
	if err != nil {
		log.Error().Err(err).Str("player", playerName).Msg("[NOTIFY] unbind channel failed")
		return
	}
	log.Info().Str("player", playerName).Msg("[NOTIFY] player disconnected")
}

// Notify delivers msg to the named player. Unknown names, such as the
// participants of local games, are skipped.
func (n *Notifier) Notify(ctx context.Context, playerName string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return eris.Wrap(err, "encode notification")
	}

	var p models.Player
	if err := n.DB.WithContext(ctx).Where("name = ?", playerName).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Debug().Str("player", playerName).Msg("[NOTIFY] no player record, skipping")
			return nil
		}
		return eris.Wrapf(err, "load player %s", playerName)
	}

	if p.Connected() {
		instance, connID, _ := strings.Cut(*p.ChannelName, "/")
		if instance == n.InstanceID {
			if err := n.sendLocal(connID, payload); err == nil {
				return nil
			}
		} else if n.Redis != nil {
			if err := n.relay(ctx, instance, relayEnvelope{ConnID: connID, PlayerID: p.ID, Payload: payload}); err == nil {
				return nil
			}
		}
	}
	return n.enqueue(ctx, p.ID, payload)
}

// NotifyAll notifies every player, logging failures.
func (n *Notifier) NotifyAll(ctx context.Context, playerNames []string, msg func(name string) any) {
	for _, name := range playerNames {
		if err := n.Notify(ctx, name, msg(name)); err != nil {
			log.Error().Err(err).Str("player", name).Msg("[NOTIFY] delivery failed")
		}
	}
}

func (n *Notifier) sendLocal(connID string, payload []byte) error {
	n.mu.RLock()
	conn, ok := n.conns[connID]
	n.mu.RUnlock()
	if !ok {
		return eris.Errorf("connection %s is not on this instance", connID)
	}
	if err := conn.Send(json.RawMessage(payload)); err != nil {
		log.Warn().Err(err).Str("conn", connID).Msg("[NOTIFY] send failed")
		return err
	}
	return nil
}

// relay hands the message to the instance owning the connection. Nobody
// listening on its channel means the instance is gone.
func (n *Notifier) relay(ctx context.Context, instance string, env relayEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	receivers, err := n.Redis.Publish(ctx, instanceChannel(instance), data).Result()
	if err != nil {
		log.Warn().Err(err).Str("instance", instance).Msg("[NOTIFY] relay failed")
		return err
	}
	if receivers == 0 {
		return eris.Errorf("instance %s is not listening", instance)
	}
	return nil
}

func (n *Notifier) enqueue(ctx context.Context, playerID string, payload []byte) error {
	err := n.DB.WithContext(ctx).Create(&models.PlayerMessage{PlayerID: playerID, Payload: string(payload)}).Error
	if err != nil {
		return eris.Wrapf(err, "queue message for player %s", playerID)
	}
	log.Debug().Str("player_id", playerID).Msg("[NOTIFY] message queued")
	return nil
}

// Flush sends the queued messages of a connected player in order. A
// message is removed only once it was handed to the connection.
func (n *Notifier) Flush(ctx context.Context, playerName string) error {
	var p models.Player
	if err := n.DB.WithContext(ctx).Where("name = ?", playerName).First(&p).Error; err != nil {
		return notFound(err, "player %s", playerName)
	}
	if !p.Connected() {
		return nil
	}
	instance, connID, _ := strings.Cut(*p.ChannelName, "/")
	if instance != n.InstanceID {
		return nil
	}

	var queued []models.PlayerMessage
	if err := n.DB.WithContext(ctx).Where("player_id = ?", p.ID).Order("id ASC").Find(&queued).Error; err != nil {
		return eris.Wrap(err, "load outbox")
	}
	for _, m := range queued {
		if err := n.sendLocal(connID, []byte(m.Payload)); err != nil {
			return nil
		}
		if err := n.DB.WithContext(ctx).Delete(&models.PlayerMessage{}, m.ID).Error; err != nil {
			return eris.Wrap(err, "drop delivered message")
		}
	}
	if len(queued) > 0 {
		log.Info().Str("player", playerName).Int("count", len(queued)).Msg("[NOTIFY] outbox flushed")
	}
	return nil
}

// Subscribe delivers messages relayed by other instances until ctx ends.
func (n *Notifier) Subscribe(ctx context.Context) {
	if n.Redis == nil {
		return
	}
	sub := n.Redis.Subscribe(ctx, instanceChannel(n.InstanceID))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		log.Error().Err(err).Msg("[NOTIFY] relay subscription failed")
		return
	}

	log.Info().Str("channel", instanceChannel(n.InstanceID)).Msg("[NOTIFY] relay subscribed")
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Warn().Err(err).Msg("[NOTIFY] bad relay envelope")
				continue
			}
			if err := n.sendLocal(env.ConnID, env.Payload); err != nil {
				if err := n.enqueue(ctx, env.PlayerID, env.Payload); err != nil {
					log.Error().Err(err).Msg("[NOTIFY] relay fallback failed")
				}
			}
		}
	}
}
