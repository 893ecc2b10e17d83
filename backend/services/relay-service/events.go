package main

import (
	"encoding/json"

	"github.com/hyperledger/fabric-sdk-go/pkg/common/providers/fab"
)

// EventSource yields chaincode event channels. fabricclient.Client satisfies it.
type EventSource interface {
	RegisterChaincodeEventListener(eventName string) (<-chan *fab.CCEvent, error)
}

var chaincodeEvents = []string{
	"DonationRecorded",
	"StatusUpdated",
	"DonationMatched",
	"ChainVerified",
	"BatchVerified",
}

// startEventIngestion subscribes to every donation chaincode event and
// mirrors them into donation_db.chain_events. Collaborators read the table
// instead of polling the chain.
func (s *Service) startEventIngestion(source EventSource) {
	for _, name := range chaincodeEvents {
		notifier, err := source.RegisterChaincodeEventListener(name)
		if err != nil {
			s.log.Error().Err(err).Str("event", name).Msg("failed to register event listener")
			continue
		}
		go s.ingestEvents(name, notifier)
	}
}

func (s *Service) ingestEvents(name string, notifier <-chan *fab.CCEvent) {
	for ev := range notifier {
		donationID := extractDonationID(ev.Payload)

		_, err := s.db.Exec(`
			INSERT INTO donation_db.chain_events (event_name, donation_id, tx_id, block_number, payload)
			VALUES ($1, $2, $3, $4, $5)`,
			ev.EventName, donationID, ev.TxID, ev.BlockNumber, string(ev.Payload))
		if err != nil {
			s.log.Error().Err(err).Str("event", ev.EventName).Msg("failed to store chain event")
			continue
		}
		s.log.Info().
			Str("event", ev.EventName).
			Str("donation_id", donationID).
			Str("tx_id", ev.TxID).
			Uint64("block", ev.BlockNumber).
			Msg("chain event ingested")
	}
	s.log.Warn().Str("event", name).Msg("event channel closed")
}

func extractDonationID(payload []byte) string {
	var body struct {
		DonationID string `json:"donation_id"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return body.DonationID
}
