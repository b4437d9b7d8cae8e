package types

import (
	"github.com/geanlabs/beacon/ssz"
	"github.com/prysmaticlabs/go-bitfield"
)

// The state's ring vectors (block roots, state roots, RANDAO mixes,
// slashings) are sized by the network configuration, so decoding needs the
// ring lengths up front. RingSizes carries them; encoding reads the actual
// slice lengths.
type RingSizes struct {
	SlotsPerHistoricalRoot    uint64
	EpochsPerHistoricalVector uint64
	EpochsPerSlashingsVector  uint64
}

func (s *BeaconState) fixedSize() int {
	return 8 + 8 + forkSize + headerSize +
		len(s.BlockRoots)*32 + len(s.StateRoots)*32 + 4 +
		eth1DataSize + 4 + 8 + 4 + 4 +
		len(s.RandaoMixes)*32 + len(s.Slashings)*8 +
		4 + 4 + 1 + 3*checkpointSize
}

func (s *BeaconState) SizeSSZ() int {
	size := s.fixedSize()
	size += len(s.HistoricalRoots) * 32
	size += len(s.Eth1DataVotes) * eth1DataSize
	size += len(s.Validators) * validatorSize
	size += len(s.Balances) * 8
	for i := range s.PreviousEpochAttestations {
		size += 4 + s.PreviousEpochAttestations[i].SizeSSZ()
	}
	for i := range s.CurrentEpochAttestations {
		size += 4 + s.CurrentEpochAttestations[i].SizeSSZ()
	}
	return size
}

func (s *BeaconState) MarshalSSZ() ([]byte, error) {
	return s.MarshalSSZTo(make([]byte, 0, s.SizeSSZ()))
}

func (s *BeaconState) MarshalSSZTo(dst []byte) ([]byte, error) {
	var err error
	dst = ssz.MarshalUint64(dst, s.GenesisTime)
	dst = ssz.MarshalUint64(dst, uint64(s.Slot))
	if dst, err = s.Fork.MarshalSSZTo(dst); err != nil {
		return nil, err
	}
	if dst, err = s.LatestBlockHeader.MarshalSSZTo(dst); err != nil {
		return nil, err
	}
	for i := range s.BlockRoots {
		dst = append(dst, s.BlockRoots[i][:]...)
	}
	for i := range s.StateRoots {
		dst = append(dst, s.StateRoots[i][:]...)
	}

	offset := s.fixedSize()
	dst = ssz.WriteOffset(dst, offset) // historical roots
	offset += len(s.HistoricalRoots) * 32

	if dst, err = s.Eth1Data.MarshalSSZTo(dst); err != nil {
		return nil, err
	}
	dst = ssz.WriteOffset(dst, offset) // eth1 data votes
	offset += len(s.Eth1DataVotes) * eth1DataSize
	dst = ssz.MarshalUint64(dst, s.Eth1DepositIndex)

	dst = ssz.WriteOffset(dst, offset) // validators
	offset += len(s.Validators) * validatorSize
	dst = ssz.WriteOffset(dst, offset) // balances
	offset += len(s.Balances) * 8

	for i := range s.RandaoMixes {
		dst = append(dst, s.RandaoMixes[i][:]...)
	}
	for i := range s.Slashings {
		dst = ssz.MarshalUint64(dst, uint64(s.Slashings[i]))
	}

	dst = ssz.WriteOffset(dst, offset) // previous epoch attestations
	for i := range s.PreviousEpochAttestations {
		offset += 4 + s.PreviousEpochAttestations[i].SizeSSZ()
	}
	dst = ssz.WriteOffset(dst, offset) // current epoch attestations

	if len(s.JustificationBits) > 0 {
		dst = append(dst, s.JustificationBits[0])
	} else {
		dst = append(dst, 0)
	}
	if dst, err = s.PreviousJustifiedCheckpoint.MarshalSSZTo(dst); err != nil {
		return nil, err
	}
	if dst, err = s.CurrentJustifiedCheckpoint.MarshalSSZTo(dst); err != nil {
		return nil, err
	}
	if dst, err = s.FinalizedCheckpoint.MarshalSSZTo(dst); err != nil {
		return nil, err
	}

	// Heap region in field declaration order.
	for i := range s.HistoricalRoots {
		dst = append(dst, s.HistoricalRoots[i][:]...)
	}
	for i := range s.Eth1DataVotes {
		if dst, err = s.Eth1DataVotes[i].MarshalSSZTo(dst); err != nil {
			return nil, err
		}
	}
	for i := range s.Validators {
		if dst, err = s.Validators[i].MarshalSSZTo(dst); err != nil {
			return nil, err
		}
	}
	for i := range s.Balances {
		dst = ssz.MarshalUint64(dst, uint64(s.Balances[i]))
	}
	if dst, err = marshalOffsetList(dst, len(s.PreviousEpochAttestations), func(i int) int {
		return s.PreviousEpochAttestations[i].SizeSSZ()
	}, func(d []byte, i int) ([]byte, error) {
		return s.PreviousEpochAttestations[i].MarshalSSZTo(d)
	}); err != nil {
		return nil, err
	}
	if dst, err = marshalOffsetList(dst, len(s.CurrentEpochAttestations), func(i int) int {
		return s.CurrentEpochAttestations[i].SizeSSZ()
	}, func(d []byte, i int) ([]byte, error) {
		return s.CurrentEpochAttestations[i].MarshalSSZTo(d)
	}); err != nil {
		return nil, err
	}
	return dst, nil
}

// UnmarshalSSZWith decodes a state whose ring vectors have the given sizes.
func (s *BeaconState) UnmarshalSSZWith(sizes RingSizes, buf []byte) error {
	a := int(sizes.SlotsPerHistoricalRoot)
	b := int(sizes.EpochsPerHistoricalVector)
	c := int(sizes.EpochsPerSlashingsVector)
	fixed := 8 + 8 + forkSize + headerSize + a*32 + a*32 + 4 +
		eth1DataSize + 4 + 8 + 4 + 4 + b*32 + c*8 + 4 + 4 + 1 + 3*checkpointSize
	if len(buf) < fixed {
		return ssz.ErrSize
	}

	pos := 0
	s.GenesisTime = ssz.UnmarshalUint64(buf[pos:])
	pos += 8
	s.Slot = Slot(ssz.UnmarshalUint64(buf[pos:]))
	pos += 8
	if err := s.Fork.UnmarshalSSZ(buf[pos : pos+forkSize]); err != nil {
		return err
	}
	pos += forkSize
	if err := s.LatestBlockHeader.UnmarshalSSZ(buf[pos : pos+headerSize]); err != nil {
		return err
	}
	pos += headerSize

	s.BlockRoots = make([]Root, a)
	for i := range s.BlockRoots {
		copy(s.BlockRoots[i][:], buf[pos:])
		pos += 32
	}
	s.StateRoots = make([]Root, a)
	for i := range s.StateRoots {
		copy(s.StateRoots[i][:], buf[pos:])
		pos += 32
	}

	offHistorical, err := ssz.ReadOffset(buf, pos, fixed, len(buf))
	if err != nil {
		return err
	}
	pos += 4

	if err := s.Eth1Data.UnmarshalSSZ(buf[pos : pos+eth1DataSize]); err != nil {
		return err
	}
	pos += eth1DataSize
	offVotes, err := ssz.ReadOffset(buf, pos, offHistorical, len(buf))
	if err != nil {
		return err
	}
	pos += 4
	s.Eth1DepositIndex = ssz.UnmarshalUint64(buf[pos:])
	pos += 8

	offValidators, err := ssz.ReadOffset(buf, pos, offVotes, len(buf))
	if err != nil {
		return err
	}
	pos += 4
	offBalances, err := ssz.ReadOffset(buf, pos, offValidators, len(buf))
	if err != nil {
		return err
	}
	pos += 4

	s.RandaoMixes = make([]Root, b)
	for i := range s.RandaoMixes {
		copy(s.RandaoMixes[i][:], buf[pos:])
		pos += 32
	}
	s.Slashings = make([]Gwei, c)
	for i := range s.Slashings {
		s.Slashings[i] = Gwei(ssz.UnmarshalUint64(buf[pos:]))
		pos += 8
	}

	offPrevAtts, err := ssz.ReadOffset(buf, pos, offBalances, len(buf))
	if err != nil {
		return err
	}
	pos += 4
	offCurrAtts, err := ssz.ReadOffset(buf, pos, offPrevAtts, len(buf))
	if err != nil {
		return err
	}
	pos += 4

	s.JustificationBits = bitfield.Bitvector4{buf[pos]}
	pos++
	if err := s.PreviousJustifiedCheckpoint.UnmarshalSSZ(buf[pos : pos+checkpointSize]); err != nil {
		return err
	}
	pos += checkpointSize
	if err := s.CurrentJustifiedCheckpoint.UnmarshalSSZ(buf[pos : pos+checkpointSize]); err != nil {
		return err
	}
	pos += checkpointSize
	if err := s.FinalizedCheckpoint.UnmarshalSSZ(buf[pos : pos+checkpointSize]); err != nil {
		return err
	}

	// Heap regions.
	region := buf[offHistorical:offVotes]
	n, err := ssz.DivideOffsets(len(region), 32, HistoricalRootsLimit)
	if err != nil {
		return err
	}
	s.HistoricalRoots = make([]Root, n)
	for i := range s.HistoricalRoots {
		copy(s.HistoricalRoots[i][:], region[i*32:])
	}

	region = buf[offVotes:offValidators]
	n, err = ssz.DivideOffsets(len(region), eth1DataSize, Eth1DataVotesLimit)
	if err != nil {
		return err
	}
	s.Eth1DataVotes = make([]Eth1Data, n)
	for i := range s.Eth1DataVotes {
		if err := s.Eth1DataVotes[i].UnmarshalSSZ(region[i*eth1DataSize : (i+1)*eth1DataSize]); err != nil {
			return err
		}
	}

	region = buf[offValidators:offBalances]
	n, err = ssz.DivideOffsets(len(region), validatorSize, ValidatorRegistryLimit)
	if err != nil {
		return err
	}
	s.Validators = make([]Validator, n)
	for i := range s.Validators {
		if err := s.Validators[i].UnmarshalSSZ(region[i*validatorSize : (i+1)*validatorSize]); err != nil {
			return err
		}
	}

	region = buf[offBalances:offPrevAtts]
	n, err = ssz.DivideOffsets(len(region), 8, ValidatorRegistryLimit)
	if err != nil {
		return err
	}
	s.Balances = make([]Gwei, n)
	for i := range s.Balances {
		s.Balances[i] = Gwei(ssz.UnmarshalUint64(region[i*8:]))
	}

	if err := unmarshalOffsetList(buf[offPrevAtts:offCurrAtts], EpochAttestationsLimit, func(n int) {
		s.PreviousEpochAttestations = make([]PendingAttestation, n)
	}, func(i int, chunk []byte) error {
		return s.PreviousEpochAttestations[i].UnmarshalSSZ(chunk)
	}); err != nil {
		return err
	}
	if err := unmarshalOffsetList(buf[offCurrAtts:], EpochAttestationsLimit, func(n int) {
		s.CurrentEpochAttestations = make([]PendingAttestation, n)
	}, func(i int, chunk []byte) error {
		return s.CurrentEpochAttestations[i].UnmarshalSSZ(chunk)
	}); err != nil {
		return err
	}

	s.hc = nil
	return nil
}
