package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/centrifugal/centrifuge"

	"github.com/pscheid92/votepulse/internal/adapter/metrics"
	"github.com/pscheid92/votepulse/internal/domain"
)

const channelPrefix = "votes:"

// NewNode creates a centrifuge node for anonymous read-only clients. Clients may
// subscribe to votes:{productId} for products in the catalog and cannot publish.
func NewNode(catalog domain.ProductCatalog, wsMetrics *metrics.WebSocketMetrics, logLevel string) (*centrifuge.Node, error) {
	conf := centrifuge.Config{LogLevel: parseCentrifugeLogLevel(logLevel), LogHandler: slogHandler}
	node, err := centrifuge.New(conf)
	if err != nil {
		return nil, fmt.Errorf("create centrifuge node: %w", err)
	}

	node.OnConnecting(onConnecting)
	node.OnConnect(onConnect(catalog, wsMetrics))

	return node, nil
}

func onConnecting(_ context.Context, _ centrifuge.ConnectEvent) (centrifuge.ConnectReply, error) {
	return centrifuge.ConnectReply{Credentials: &centrifuge.Credentials{UserID: ""}}, nil
}

func onConnect(catalog domain.ProductCatalog, wsMetrics *metrics.WebSocketMetrics) func(client *centrifuge.Client) {
	return func(client *centrifuge.Client) {
		slog.Debug("Client connected", "client_id", client.ID())

		if wsMetrics != nil {
			wsMetrics.ActiveConnections.Inc()
		}

		client.OnSubscribe(func(e centrifuge.SubscribeEvent, cb centrifuge.SubscribeCallback) {
			result, err := authorizeChannel(client.Context(), catalog, e.Channel)
			if wsMetrics != nil {
				wsMetrics.Subscriptions.WithLabelValues(result).Inc()
			}
			cb(centrifuge.SubscribeReply{}, err)
		})

		client.OnPublish(func(_ centrifuge.PublishEvent, cb centrifuge.PublishCallback) {
			cb(centrifuge.PublishReply{}, centrifuge.ErrorPermissionDenied)
		})

		client.OnDisconnect(func(e centrifuge.DisconnectEvent) {
			slog.Debug("Client disconnected", "client_id", client.ID(), "reason", e.Reason)
			if wsMetrics != nil {
				wsMetrics.ActiveConnections.Dec()
			}
		})
	}
}

// authorizeChannel admits subscriptions to votes:{productId} for catalog products.
// The returned result labels the subscriptions metric.
func authorizeChannel(ctx context.Context, catalog domain.ProductCatalog, channel string) (string, error) {
	productID, ok := channelProductID(channel)
	if !ok {
		return "bad_channel", centrifuge.ErrorUnknownChannel
	}

	exists, err := catalog.Exists(ctx, productID)
	if err != nil {
		slog.WarnContext(ctx, "Catalog lookup failed for subscription", "channel", channel, "error", err)
		return "catalog_error", centrifuge.ErrorInternal
	}
	if !exists {
		return "unknown_product", centrifuge.ErrorUnknownChannel
	}
	return "accepted", nil
}

// channelProductID extracts the product id from a votes:{productId} channel.
func channelProductID(channel string) (string, bool) {
	productID, ok := strings.CutPrefix(channel, channelPrefix)
	if !ok || productID == "" || strings.Contains(productID, ":") {
		return "", false
	}
	return productID, true
}

// SetupRedis switches the node to the Redis broker so publishes reach clients
// connected to any instance.
func SetupRedis(node *centrifuge.Node, addr, password string, db int) error {
	shardConfig := centrifuge.RedisShardConfig{Address: addr, Password: password, DB: db}
	shard, err := centrifuge.NewRedisShard(node, shardConfig)
	if err != nil {
		return fmt.Errorf("create redis shard: %w", err)
	}

	brokerConfig := centrifuge.RedisBrokerConfig{Prefix: "votepulse", Shards: []*centrifuge.RedisShard{shard}}
	broker, err := centrifuge.NewRedisBroker(node, brokerConfig)
	if err != nil {
		return fmt.Errorf("create redis broker: %w", err)
	}
	node.SetBroker(broker)

	return nil
}

func slogHandler(entry centrifuge.LogEntry) {
	attrs := make([]any, 0, len(entry.Fields)*2+2)
	attrs = append(attrs, "component", "centrifuge")
	for k, v := range entry.Fields {
		attrs = append(attrs, k, v)
	}
	switch entry.Level {
	case centrifuge.LogLevelTrace, centrifuge.LogLevelDebug:
		slog.Debug(entry.Message, attrs...)
	case centrifuge.LogLevelInfo:
		slog.Info(entry.Message, attrs...)
	case centrifuge.LogLevelWarn:
		slog.Warn(entry.Message, attrs...)
	case centrifuge.LogLevelError:
		slog.Error(entry.Message, attrs...)
	case centrifuge.LogLevelNone:
	}
}

func parseCentrifugeLogLevel(level string) centrifuge.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return centrifuge.LogLevelDebug
	case "warn":
		return centrifuge.LogLevelWarn
	case "error":
		return centrifuge.LogLevelError
	default:
		return centrifuge.LogLevelInfo
	}
}
