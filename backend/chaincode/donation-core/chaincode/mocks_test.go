package chaincode

import (
	"crypto/x509"
	"fmt"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// mockStub backs the world state with a map. Embedding the interface keeps
// the mock small; only the methods the contract touches are overridden.
type mockStub struct {
	shim.ChaincodeStubInterface
	state  map[string][]byte
	events map[string][]byte
	txID   string
	now    time.Time
}

func newMockStub() *mockStub {
	return &mockStub{
		state:  map[string][]byte{},
		events: map[string][]byte{},
		txID:   "mock-tx-1",
		now:    time.Unix(1700000000, 0),
	}
}

func (m *mockStub) GetState(key string) ([]byte, error) {
	return m.state[key], nil
}

func (m *mockStub) PutState(key string, value []byte) error {
	m.state[key] = value
	return nil
}

func (m *mockStub) GetTxID() string {
	return m.txID
}

func (m *mockStub) GetTxTimestamp() (*timestamppb.Timestamp, error) {
	return timestamppb.New(m.now), nil
}

func (m *mockStub) SetEvent(name string, payload []byte) error {
	m.events[name] = payload
	return nil
}

// mockClientIdentity satisfies cid.ClientIdentity with fixed attributes.
type mockClientIdentity struct {
	id    string
	mspID string
	attrs map[string]string
}

func (m *mockClientIdentity) GetID() (string, error)    { return m.id, nil }
func (m *mockClientIdentity) GetMSPID() (string, error) { return m.mspID, nil }

func (m *mockClientIdentity) GetAttributeValue(name string) (string, bool, error) {
	value, found := m.attrs[name]
	return value, found, nil
}

func (m *mockClientIdentity) AssertAttributeValue(name, value string) error {
	actual, found := m.attrs[name]
	if !found || actual != value {
		return fmt.Errorf("attribute %s does not have value %s", name, value)
	}
	return nil
}

func (m *mockClientIdentity) GetX509Certificate() (*x509.Certificate, error) {
	return nil, nil
}

// newTestContext returns a transaction context acting as the given role,
// together with the stub so tests can reach into state and events.
func newTestContext(role string) (*contractapi.TransactionContext, *mockStub) {
	stub := newMockStub()
	ctx := &contractapi.TransactionContext{}
	ctx.SetStub(stub)
	ctx.SetClientIdentity(&mockClientIdentity{
		id:    "x509::CN=" + role + "-1",
		mspID: "YtiliMSP",
		attrs: map[string]string{"role": role},
	})
	return ctx, stub
}

// asRole swaps the acting identity on an existing context, keeping state.
func asRole(ctx *contractapi.TransactionContext, role string) {
	ctx.SetClientIdentity(&mockClientIdentity{
		id:    "x509::CN=" + role + "-1",
		mspID: "YtiliMSP",
		attrs: map[string]string{"role": role},
	})
}

func setupLedger(contract *SmartContract, ctx *contractapi.TransactionContext) error {
	return contract.InitLedger(ctx)
}
