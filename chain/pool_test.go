package chain

import (
	"testing"

	"github.com/geanlabs/beacon/types"
	"github.com/prysmaticlabs/go-bitfield"
)

func poolAttestation(epoch types.Epoch, blockRoot types.Root) *types.Attestation {
	bits := bitfield.NewBitlist(2)
	bits.SetBitAt(0, true)
	return &types.Attestation{
		AggregationBits: bits,
		Data: types.AttestationData{
			Slot:            types.Slot(epoch) * 8,
			BeaconBlockRoot: blockRoot,
			Target:          types.Checkpoint{Epoch: epoch},
		},
	}
}

func TestPool_TickExpiresOldEpochs(t *testing.T) {
	pool := NewAttestationPool()
	pool.Add(poolAttestation(0, types.Root{0x01}), true)
	pool.Add(poolAttestation(1, types.Root{0x02}), true)
	pool.Add(poolAttestation(2, types.Root{0x03}), true)

	pool.Tick(2)

	if len(pool.byEpoch[0]) != 0 {
		t.Error("epoch 0 should be discarded at epoch 2")
	}
	if len(pool.byEpoch[1]) != 1 || len(pool.byEpoch[2]) != 1 {
		t.Error("epochs 1 and 2 should survive at epoch 2")
	}
}

func TestPool_NoBlockQueueFlushesOnApply(t *testing.T) {
	pool := NewAttestationPool()
	blockRoot := types.Root{0x0b}

	att := poolAttestation(1, blockRoot)
	pool.Add(att, false)

	if len(pool.byEpoch[1]) != 0 {
		t.Fatal("unknown-root attestation must not enter the main pool")
	}

	flushed := pool.FlushBlock(blockRoot)
	if len(flushed) != 1 {
		t.Fatalf("flush returned %d attestations, want 1", len(flushed))
	}
	if len(pool.byEpoch[1]) != 1 {
		t.Fatal("flushed attestation missing from the main pool")
	}
	if again := pool.FlushBlock(blockRoot); len(again) != 0 {
		t.Fatal("second flush should be empty")
	}
}

func TestPool_TickPrunesNoBlockQueue(t *testing.T) {
	pool := NewAttestationPool()
	blockRoot := types.Root{0x0b}
	pool.Add(poolAttestation(0, blockRoot), false)
	pool.Add(poolAttestation(3, blockRoot), false)

	pool.Tick(3)

	if len(pool.noBlock[blockRoot]) != 1 {
		t.Fatalf("stale parked attestation should be pruned, %d left", len(pool.noBlock[blockRoot]))
	}
}
