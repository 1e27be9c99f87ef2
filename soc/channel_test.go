// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package soc

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ffutop/c0microsd-toolkit/device"
	"github.com/ffutop/c0microsd-toolkit/transport/transporttest"
)

// scriptedSoC serves a fixed sequence of status values after a command is
// written, then reports the idle state once the idle command arrives.
type scriptedSoC struct {
	script  []Status
	current Status
	polls   int
	idle    uint32
}

func newScriptedFake(script ...Status) (*transporttest.Fake, *scriptedSoC) {
	s := &scriptedSoC{script: script}
	fake := transporttest.NewFake(0x70000)
	fake.OnRead = func(offset int64, length int) ([]byte, bool, error) {
		if offset != device.StatusRegisterOffset {
			return nil, false, nil
		}
		st := s.current
		if s.polls < len(s.script) {
			st = s.script[s.polls]
			s.polls++
		}
		raw := make([]byte, 4)
		binary.LittleEndian.PutUint32(raw, uint32(st))
		return raw, true, nil
	}
	fake.OnWrite = func(offset int64, data []byte) (bool, error) {
		if offset == device.CommandRegisterOffset && binary.LittleEndian.Uint32(data) == s.idle {
			s.current = WaitingForCommand
			s.polls = len(s.script)
		}
		return false, nil
	}
	return fake, s
}

func TestCalculate_Done(t *testing.T) {
	fake, _ := newScriptedFake(Calculating, Calculating, Done, Done)
	miso, err := PackFloats([]float32{7.5}, device.MISOBufferSize)
	require.NoError(t, err)
	copy(fake.Image[device.MISOBufferOffset:], miso)

	var busy int
	ch := NewChannel(fake,
		WithPollInterval(time.Millisecond),
		WithProgress(func(cmd uint32, st Status) { busy++ }),
	)

	out, err := ch.Calculate(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, out, device.MISOBufferSize)

	values, err := UnpackFloats(out, 1)
	require.NoError(t, err)
	require.Equal(t, float32(7.5), values[0])
	require.Equal(t, 2, busy)

	cmds := fake.Writes(device.CommandRegisterOffset)
	require.GreaterOrEqual(t, len(cmds), 2)
	require.Equal(t, uint32(1), binary.LittleEndian.Uint32(cmds[0].Data))
	require.Equal(t, IdleCommand, binary.LittleEndian.Uint32(cmds[len(cmds)-1].Data))
	require.Len(t, fake.Reads(device.MISOBufferOffset), 1)
}

func TestCalculate_InvalidCommand(t *testing.T) {
	fake, _ := newScriptedFake(Calculating, InvalidCommand, InvalidCommand)
	ch := NewChannel(fake, WithPollInterval(time.Millisecond))

	_, err := ch.Calculate(context.Background(), 9)
	require.ErrorIs(t, err, device.ErrInvalidCommand)

	var perr *device.ProtocolError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, uint32(9), perr.Command)

	require.Empty(t, fake.Reads(device.MISOBufferOffset), "MISO must not be read")
	require.NotEmpty(t, fake.Writes(device.CommandRegisterOffset)[1:], "drain must acknowledge")
}

func TestCalculate_UnexpectedStatus(t *testing.T) {
	fake, _ := newScriptedFake(Status(42))
	ch := NewChannel(fake, WithPollInterval(time.Millisecond))

	_, err := ch.Calculate(context.Background(), 1)
	require.ErrorIs(t, err, device.ErrUnexpectedStatus)

	var perr *device.ProtocolError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, uint32(42), perr.Status)
}

func TestCalculate_WaitingKeepsPolling(t *testing.T) {
	fake, _ := newScriptedFake(WaitingForCommand, Calculating, Done, Done)
	ch := NewChannel(fake, WithPollInterval(time.Millisecond))

	_, err := ch.Calculate(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, fake.Reads(device.MISOBufferOffset), 1)
}

func TestCalculate_Timeout(t *testing.T) {
	script := make([]Status, 10000)
	for i := range script {
		script[i] = Calculating
	}
	fake, _ := newScriptedFake(script...)
	ch := NewChannel(fake,
		WithPollInterval(5*time.Millisecond),
		WithTimeout(30*time.Millisecond),
	)

	_, err := ch.Calculate(context.Background(), 1)
	require.ErrorIs(t, err, device.ErrTimeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Empty(t, fake.Reads(device.MISOBufferOffset))
}

func TestCalculate_ContextCancelledStillDrains(t *testing.T) {
	fake, _ := newScriptedFake(Calculating, Calculating, Calculating)
	ch := NewChannel(fake, WithPollInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ch.Calculate(ctx, 3)
	require.ErrorIs(t, err, device.ErrTimeout)
	require.ErrorIs(t, err, context.Canceled)

	cmds := fake.Writes(device.CommandRegisterOffset)
	require.Equal(t, IdleCommand, binary.LittleEndian.Uint32(cmds[len(cmds)-1].Data))
}

func TestCalculate_DrainTimeout(t *testing.T) {
	fake := transporttest.NewFake(0x70000)
	fake.OnRead = func(offset int64, length int) ([]byte, bool, error) {
		if offset == device.StatusRegisterOffset {
			raw := make([]byte, 4)
			binary.LittleEndian.PutUint32(raw, uint32(Done))
			return raw, true, nil
		}
		return nil, false, nil
	}
	ch := NewChannel(fake,
		WithPollInterval(time.Millisecond),
		WithDrainTimeout(20*time.Millisecond),
	)

	_, err := ch.Calculate(context.Background(), 1)
	require.ErrorIs(t, err, device.ErrTimeout)
}

func TestCalculate_TransportError(t *testing.T) {
	boom := errors.New("boom")
	fake := transporttest.NewFake(0x70000)
	fake.OnWrite = func(offset int64, data []byte) (bool, error) {
		return false, boom
	}
	ch := NewChannel(fake, WithPollInterval(time.Millisecond))

	_, err := ch.Calculate(context.Background(), 1)
	require.ErrorIs(t, err, boom)
}

func TestCalculate_CustomIdleCommand(t *testing.T) {
	fake, s := newScriptedFake(Calculating, Done, Done)
	s.idle = 0xFF
	ch := NewChannel(fake, WithPollInterval(time.Millisecond), WithIdleCommand(0xFF))

	_, err := ch.Calculate(context.Background(), 1)
	require.NoError(t, err)

	cmds := fake.Writes(device.CommandRegisterOffset)
	require.Len(t, cmds, 2)
	require.Equal(t, uint32(0xFF), binary.LittleEndian.Uint32(cmds[1].Data))
}

func TestExecute(t *testing.T) {
	fake, _ := newScriptedFake(Done)
	ch := NewChannel(fake, WithPollInterval(time.Millisecond))

	in, err := PackFloats([]float32{1.5, 2}, 8)
	require.NoError(t, err)
	_, err = ch.Execute(context.Background(), 1, in)
	require.NoError(t, err)

	mosi := fake.Writes(device.MOSIBufferOffset)
	require.Len(t, mosi, 1)
	require.Len(t, mosi[0].Data, device.MOSIBufferSize)
	require.Equal(t, in, mosi[0].Data[:8])
}

func TestWriteMOSI_Overflow(t *testing.T) {
	fake := transporttest.NewFake(0x70000)
	ch := NewChannel(fake)

	err := ch.WriteMOSI(make([]byte, device.MOSIBufferSize+1))
	var sizeErr *device.SizeError
	require.ErrorAs(t, err, &sizeErr)
	require.Empty(t, fake.Writes(device.MOSIBufferOffset))
}

func TestReadControl(t *testing.T) {
	fake := transporttest.NewFake(0x70000)
	binary.LittleEndian.PutUint32(fake.Image[device.SoCControlRegisterOffset:], 0xDEADBEEF)

	v, err := NewChannel(fake).ReadControl()
	require.NoError(t, err)
	require.Equal(t, uint32(0xDEADBEEF), v)
}

func TestFloats(t *testing.T) {
	buf, err := PackFloats([]float32{1, -2.25, 3e5}, 16)
	require.NoError(t, err)
	require.Len(t, buf, 16)

	values, err := UnpackFloats(buf, 3)
	require.NoError(t, err)
	require.Equal(t, []float32{1, -2.25, 3e5}, values)

	_, err = UnpackFloats(buf[:4], 2)
	require.Error(t, err)

	_, err = PackFloats(make([]float32, 5), 16)
	require.Error(t, err)
}

func TestStatus_String(t *testing.T) {
	require.Equal(t, "Done", Done.String())
	require.Equal(t, "Status(9)", Status(9).String())
	require.False(t, Status(9).Known())
}
