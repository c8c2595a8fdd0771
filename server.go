package main

import (
	"fmt"
	"os"

	"github.com/hyperledger/fabric-chaincode-go/shim"

	"github.com/provenance-supply-chain/chaincode/supply-chain/config"
)

// RunAsService runs the chaincode as an external service
func RunAsService(cfg config.ServerConfig, cc shim.Chaincode) error {
	tlsProps, err := tlsProperties(cfg)
	if err != nil {
		return err
	}

	server := &shim.ChaincodeServer{
		CCID:     cfg.ChaincodeID,
		Address:  cfg.Address,
		CC:       cc,
		TLSProps: tlsProps,
	}

	// Start the chaincode server
	return server.Start()
}

func tlsProperties(cfg config.ServerConfig) (shim.TLSProperties, error) {
	if cfg.TLSDisabled {
		return shim.TLSProperties{Disabled: true}, nil
	}
	key, err := os.ReadFile(cfg.KeyFile)
	if err != nil {
		return shim.TLSProperties{}, fmt.Errorf("failed to read TLS key: %w", err)
	}
	cert, err := os.ReadFile(cfg.CertFile)
	if err != nil {
		return shim.TLSProperties{}, fmt.Errorf("failed to read TLS certificate: %w", err)
	}
	props := shim.TLSProperties{Key: key, Cert: cert}
	if cfg.ClientCAFile != "" {
		if props.ClientCACerts, err = os.ReadFile(cfg.ClientCAFile); err != nil {
			return shim.TLSProperties{}, fmt.Errorf("failed to read client CA: %w", err)
		}
	}
	return props, nil
}
