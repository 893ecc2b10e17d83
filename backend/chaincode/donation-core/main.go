package main

import (
	"log"

	"github.com/devprosvn/Ytili/backend/chaincode/donation-core/chaincode"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

func main() {
	donationChaincode, err := contractapi.NewChaincode(&chaincode.SmartContract{})
	if err != nil {
		log.Panicf("Error creating donation chaincode: %v", err)
	}

	if err := donationChaincode.Start(); err != nil {
		log.Panicf("Error starting donation chaincode: %v", err)
	}
}
