package perps

import (
	"github.com/holiman/uint256"

	"github.com/ag-wnl/perp-dex/crypto"
)

// mockEngineState is an in-memory engineState used by the engine tests,
// following the map-backed mock idiom the lending module's own test suite
// used (mockEngineState in engine_accrual_test.go).
type mockEngineState struct {
	pools     map[string]*Pool
	custodies map[string]*Custody
	positions map[string]*Position
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{
		pools:     make(map[string]*Pool),
		custodies: make(map[string]*Custody),
		positions: make(map[string]*Position),
	}
}

func custodyKey(poolID, mint string) string { return poolID + "/" + mint }

func positionKey(owner crypto.Address, poolID, mint string, side Side) string {
	return owner.String() + "/" + poolID + "/" + mint + "/" + side.String()
}

func (m *mockEngineState) GetPool(poolID string) (*Pool, error) {
	return m.pools[poolID], nil
}

func (m *mockEngineState) PutPool(pool *Pool) error {
	m.pools[pool.Name] = pool
	return nil
}

func (m *mockEngineState) GetCustody(poolID, mint string) (*Custody, error) {
	return m.custodies[custodyKey(poolID, mint)], nil
}

func (m *mockEngineState) PutCustody(custody *Custody) error {
	m.custodies[custodyKey(custody.Pool, custody.Mint)] = custody
	return nil
}

func (m *mockEngineState) GetPosition(owner crypto.Address, poolID, mint string, side Side) (*Position, error) {
	return m.positions[positionKey(owner, poolID, mint, side)], nil
}

func (m *mockEngineState) PutPosition(position *Position) error {
	m.positions[positionKey(position.Owner, position.Pool, position.Custody, position.Side)] = position
	return nil
}

func (m *mockEngineState) DeletePosition(owner crypto.Address, poolID, mint string, side Side) error {
	delete(m.positions, positionKey(owner, poolID, mint, side))
	return nil
}

// noopLedger is a TokenLedger that always succeeds, mirroring the "no-op
// in-memory implementation" SPEC_FULL.md section 6 calls for in tests.
type noopLedger struct{}

func (noopLedger) TransferFromUser(crypto.Address, string, *uint256.Int) error { return nil }
func (noopLedger) TransferFromPool(crypto.Address, string, *uint256.Int) error { return nil }
