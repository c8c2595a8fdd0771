package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/provenance-supply-chain/chaincode/supply-chain/config"
	"github.com/provenance-supply-chain/chaincode/supply-chain/contracts"
	"github.com/provenance-supply-chain/chaincode/supply-chain/metrics"
	"github.com/provenance-supply-chain/chaincode/supply-chain/ops"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading supply chain configuration: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	chaincode, err := contractapi.NewChaincode(&contracts.SupplyChainContract{
		Policy:   cfg.Policy,
		Logger:   logger,
		Recorder: metrics.NewOperations(reg),
	})
	if err != nil {
		log.Fatalf("Error creating supply chain chaincode: %v", err)
	}
	chaincode.Info.Title = "supply-chain"
	chaincode.Info.Version = "1.0.0"

	if cfg.OpsAddr != "" {
		go func() {
			if err := ops.Serve(cfg.OpsAddr, ops.NewRouter("supply-chain", reg), logger); err != nil {
				logger.Error("ops listener stopped", "error", err)
			}
		}()
	}

	logger.Info("starting supply chain chaincode",
		"externalService", cfg.ExternalService(),
		"minPrice", cfg.Policy.MinPrice.String(),
		"maxPrice", cfg.Policy.MaxPrice.String(),
		"maxBatchSize", cfg.Policy.MaxBatchSize,
	)

	// Check if running as external service
	if cfg.ExternalService() {
		if err := RunAsService(cfg.Server, chaincode); err != nil {
			log.Fatalf("Error starting supply chain chaincode server: %v", err)
		}
		return
	}
	if err := chaincode.Start(); err != nil {
		log.Fatalf("Error starting supply chain chaincode: %v", err)
	}
}
