// dexexec is a one-shot swap utility for verifying wallet, RPC, and Jupiter
// connectivity outside the trading loop.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/Carl590/ai-trading-bot/internal/config"
	dex "github.com/Carl590/ai-trading-bot/internal/dex/solana"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	inputMint := flag.String("in", dex.MintWSOL, "input mint")
	outputMint := flag.String("out", dex.MintUSDC, "output mint")
	amount := flag.Uint64("amount", 10_000_000, "input amount in smallest units")
	slippageBps := flag.Int("slippage", 150, "slippage in bps")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	key, err := dex.LoadPrivateKeyFromEnv()
	if err != nil {
		log.Fatalf("wallet: %v", err)
	}

	client := dex.NewJupiterClient(
		getEnv("SOLANA_RPC_URL", cfg.Dex.RpcURL),
		getEnv("JUPITER_BASE_URL", cfg.Dex.JupiterBase),
		key,
		getEnv("SOLANA_COMMITMENT", cfg.Dex.Commitment),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	quote, err := client.GetQuote(ctx, *inputMint, *outputMint, *amount, *slippageBps)
	if err != nil {
		log.Fatalf("quote: %v", err)
	}

	sig, err := client.BuildAndSendSwap(ctx, quote)
	if err != nil {
		log.Fatalf("swap: %v", err)
	}
	log.Printf("submitted tx: %s", sig.String())
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
