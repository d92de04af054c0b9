// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package gatekeeper_test

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/internal/telnet"
)

// baseConfig ends with the allow-list so tests can append names to it.
const baseConfig = `deny-message: "Ask an admin to add you."
allowed-offline-players:
  - Steve
  - Notch
  - "Guest*"
`

var _ = Describe("Gatekeeper over the console", func() {
	var env *testEnv

	BeforeEach(func() {
		env = startEnv(GinkgoT().TempDir(), baseConfig)
	})

	AfterEach(func() {
		env.stop()
	})

	Describe("offline player lifecycle", func() {
		It("registers, reconnects and logs in", func() {
			steve := env.dial()
			steve.send("connect - Steve")
			steve.expect(auth.MsgLoginHint)
			steve.expect(auth.MsgRegisterHint)
			steve.expect("* connected to login")

			steve.send("hello everyone")
			steve.expect(auth.MsgChatDenied)

			steve.send("/register secret1")
			steve.expect(auth.MsgPasswordNoUpper)

			steve.send("/register Secret1")
			steve.expect(auth.MsgRegisterSuccess)
			steve.expect("* connected to survival")
			steve.quit()

			body, err := os.ReadFile(env.credentials)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring(telnet.OfflineUUID("Steve").String() + ":Steve:$argon2id$"))
			Expect(string(body)).NotTo(ContainSubstring("Secret1"))

			again := env.dial()
			again.send("connect - Steve")
			again.expect("* connected to login")

			again.send("/spawn")
			again.expect(auth.MsgCommandLoginFirst)

			again.send("/register Secret1")
			again.expect(auth.MsgAlreadyRegistered)

			again.send("/login Secret2")
			again.expect(auth.MsgWrongPassword)

			again.send("/login Secret1")
			again.expect(auth.MsgLoginSuccess)
			again.expect("* connected to survival")

			again.send("hello everyone")
			again.expect("<Steve> hello everyone")

			again.send("server login")
			again.expect(auth.MsgMaySwitch)
			again.expect("* connected to login")
		})

		It("keeps registrations across a restart", func() {
			steve := env.dial()
			steve.send("connect - Steve")
			steve.send("/register Secret1")
			steve.expect(auth.MsgRegisterSuccess)
			steve.quit()

			dir := env.dir
			env.stop()
			env = startEnv(dir, baseConfig)

			again := env.dial()
			again.send("connect - Steve")
			again.send("/login Secret1")
			again.expect(auth.MsgLoginSuccess)
		})

		It("sends unauthenticated players back to the login server", func() {
			guest := env.dial()
			guest.send("connect - Guest42")
			guest.expect("* connected to login")

			guest.send("server survival")
			guest.expect(auth.MsgLoginRequired)
			guest.expect("* already on login")
		})
	})

	Describe("rate limiting", func() {
		BeforeEach(func() {
			steve := env.dial()
			steve.send("connect - Steve")
			steve.send("/register Secret1")
			steve.expect(auth.MsgRegisterSuccess)
			steve.quit()
		})

		It("blocks after three failures until the window passes", func() {
			c := env.dial()
			c.send("connect - Steve")
			c.expect("* connected to login")

			c.send("/login Wrong1")
			c.expect(auth.MsgWrongPassword)
			c.send("/login Wrong2")
			c.expect(auth.MsgWrongPassword)
			c.send("/login Wrong3")
			c.expect(auth.MsgWrongPassword)
			c.expect(fmt.Sprintf(auth.MsgLockedOutAfterFail, "5m0s"))

			c.send("/login Secret1")
			c.expect("Too many failed login attempts. Try again in")
			c.quit()

			again := env.dial()
			again.send("connect - Steve")
			again.send("/login Secret1")
			again.expect("Too many failed login attempts. Try again in")

			env.clock.Advance(5 * time.Minute)
			again.send("/login Secret1")
			again.expect(auth.MsgLoginSuccess)

			Expect(testutil.GatherAndCount(env.registry, "authgate_login_attempts_total")).To(BeNumerically(">=", 3))
		})
	})

	Describe("access policy", func() {
		It("denies offline names missing from the allow-list", func() {
			alex := env.dial()
			alex.send("connect - Alex")
			alex.expect("Disconnected: Ask an admin to add you.")
		})

		It("applies /authreload from an operator", func() {
			op := env.dial()
			op.send("connect %s Jeb verified op", uuid.New())
			op.expect("* connected to survival")

			writeFile(env.configPath, baseConfig+"  - Alex\n")
			op.send("/authreload")
			op.expect(auth.MsgReloadOK)

			alex := env.dial()
			alex.send("connect - Alex")
			alex.expect("* connected to login")
		})

		It("keeps the previous policy when the new file is broken", func() {
			op := env.dial()
			op.send("connect %s Jeb verified op", uuid.New())
			op.expect("* connected to survival")

			writeFile(env.configPath, "allowed-offline-players: [\"[broken\"]\n")
			op.send("/authreload")
			op.expect(auth.MsgReloadFailed)

			steve := env.dial()
			steve.send("connect - Steve")
			steve.expect("* connected to login")
		})

		It("refuses /authreload without permission", func() {
			p := env.dial()
			p.send("connect %s Dinnerbone verified", uuid.New())
			p.expect("* connected to survival")

			p.send("/authreload")
			p.expect(auth.MsgNoPermission)
		})
	})

	Describe("premium accounts", func() {
		It("lets verified players straight through", func() {
			p := env.dial()
			p.send("connect %s Notch verified", uuid.New())
			p.expect(fmt.Sprintf(auth.MsgWelcomePremium, "Notch"))
			p.expect("* connected to survival")

			p.send("/register Secret1")
			p.expect(auth.MsgNoRegistrationNeeded)

			p.send("hi")
			p.expect("<Notch> hi")
		})

		It("warns offline players that use a premium name", func() {
			impostor := env.dial()
			impostor.send("connect - Notch")
			impostor.expect("* connected to login")
			impostor.expect(fmt.Sprintf(auth.MsgNameCollision, "Notch"))
		})
	})
})
