// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mfrc522

// MFRC522 register addresses
const (
	RegCommand     = 0x01
	RegComIEn      = 0x02
	RegDivIEn      = 0x03
	RegComIrq      = 0x04
	RegDivIrq      = 0x05
	RegError       = 0x06
	RegStatus1     = 0x07
	RegStatus2     = 0x08
	RegFIFOData    = 0x09
	RegFIFOLevel   = 0x0A
	RegWaterLevel  = 0x0B
	RegControl     = 0x0C
	RegBitFraming  = 0x0D
	RegColl        = 0x0E
	RegMode        = 0x11
	RegTxMode      = 0x12
	RegRxMode      = 0x13
	RegTxControl   = 0x14
	RegTxASK       = 0x15
	RegCRCResultH  = 0x21
	RegCRCResultL  = 0x22
	RegRFCfg       = 0x26
	RegTMode       = 0x2A
	RegTPrescaler  = 0x2B
	RegTReloadH    = 0x2C
	RegTReloadL    = 0x2D
	RegVersion     = 0x37
	maxRegisterNum = 0x3F
)

// Chip command codes written to RegCommand
const (
	ModeIdle         = 0x00
	ModeCalcCRC      = 0x03
	ModeTransmit     = 0x04
	ModeReceive      = 0x08
	ModeTransceive   = 0x0C
	ModeAuthenticate = 0x0E
	ModeSoftReset    = 0x0F
)

// ISO 14443-A / MIFARE Classic card commands
const (
	ReqIdle      = 0x26 // REQA
	ReqAll       = 0x52 // WUPA
	piccAnticoll = 0x93 // cascade level 1, also SELECT
	piccSelect   = 0x93
	piccHalt     = 0x50
	piccRead     = 0x30
	piccWrite    = 0xA0
)

// Register bit masks
const (
	irqSet        = 0x80 // Set1/Set2 bit of the IRQ registers
	irqTimer      = 0x01 // TimerIRq
	irqCRC        = 0x04 // CRCIRq in RegDivIrq
	fifoFlush     = 0x80 // FlushBuffer in RegFIFOLevel
	startSend     = 0x80 // StartSend in RegBitFraming
	lastBitsMask  = 0x07 // RxLastBits in RegControl
	errorMask     = 0x1B // BufferOvfl | CollErr | ParityErr | ProtocolErr
	crypto1On     = 0x08 // MFCrypto1On in RegStatus2
	tempSensClear = 0x80 // TempSensClear in RegStatus2
	antennaBits   = 0x03 // Tx1RFEn | Tx2RFEn
	gainMask      = 0x70 // RxGain in RegRFCfg
	mifareACK     = 0x0A
)

// IRQ enable and wait masks per chip command
const (
	authIRQEnable       = 0x12
	authIRQWait         = 0x10
	transceiveIRQEnable = 0x77
	transceiveIRQWait   = 0x30
)

const (
	// FIFOLimit is the largest response drained from the FIFO
	FIFOLimit = 16
	// BlockSize is the size of one MIFARE Classic block
	BlockSize = 16
	// KeySize is the size of a MIFARE Classic key
	KeySize = 6
	// crcPollLimit bounds the CRC coprocessor poll loop
	crcPollLimit = 255
)
