package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/inkbytefo/oxis-xcord-sub000/internal/core"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/domain"
	"github.com/inkbytefo/oxis-xcord-sub000/internal/media"
)

func (ctl *Controller) handleCreateTransport(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p createTransportPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad create-transport payload")
		ctl.sendError(conn, "bad payload")
		return
	}

	room, err := ctl.Orch.Room(sid, domain.RoomID(p.RoomID))
	if err != nil {
		ctl.sendOpError(conn, err)
		return
	}

	params, err := room.CreateTransport(ctx, ctl.principal(sid))
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", p.RoomID).Msg("create transport failed")
		ctl.sendOpError(conn, err)
		return
	}

	ctl.sendEvent(conn, "transport-parameters", transportParametersData{
		RoomID:          room.ID(),
		TransportParams: params,
	})
}

func (ctl *Controller) handleConnectTransport(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p connectTransportPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad connect-transport payload")
		ctl.sendError(conn, "bad payload")
		return
	}

	room, err := ctl.Orch.Room(sid, domain.RoomID(p.RoomID))
	if err != nil {
		ctl.sendOpError(conn, err)
		return
	}

	if err := room.ConnectTransport(ctx, ctl.principal(sid), p.TransportID, p.DTLSParameters); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("transport", p.TransportID).Msg("connect transport failed")
		ctl.sendOpError(conn, err)
	}
}

func (ctl *Controller) handleProduce(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p producePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad produce payload")
		ctl.sendError(conn, "bad payload")
		return
	}
	if p.Kind == "" {
		p.Kind = media.KindAudio
	}

	room, err := ctl.Orch.Room(sid, domain.RoomID(p.RoomID))
	if err != nil {
		ctl.sendOpError(conn, err)
		return
	}

	producerID, err := room.Produce(ctx, ctl.principal(sid), p.TransportID, p.Kind, p.RTPParameters)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("transport", p.TransportID).Msg("produce failed")
		ctl.sendOpError(conn, err)
		return
	}

	ctl.sendEvent(conn, "produced", producedData{
		RoomID:     room.ID(),
		ProducerID: producerID,
	})
}

func (ctl *Controller) handleConsume(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p consumePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad consume payload")
		ctl.sendError(conn, "bad payload")
		return
	}

	room, err := ctl.Orch.Room(sid, domain.RoomID(p.RoomID))
	if err != nil {
		ctl.sendOpError(conn, err)
		return
	}

	info, err := room.Consume(ctx, ctl.principal(sid), p.TransportID, p.ProducerID, p.RTPCapabilities)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("producer", p.ProducerID).Msg("consume failed")
		ctl.sendOpError(conn, err)
		return
	}

	ctl.sendEvent(conn, "consumer-parameters", consumerParametersData{
		RoomID:       room.ID(),
		ConsumerInfo: info,
	})
}

func (ctl *Controller) handleResumeConsumer(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p resumeConsumerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad resume-consumer payload")
		ctl.sendError(conn, "bad payload")
		return
	}

	room, err := ctl.Orch.Room(sid, domain.RoomID(p.RoomID))
	if err != nil {
		ctl.sendOpError(conn, err)
		return
	}

	if err := room.ResumeConsumer(ctx, ctl.principal(sid), p.ConsumerID); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("consumer", p.ConsumerID).Msg("resume failed")
		ctl.sendOpError(conn, err)
	}
}
