package auth

import "github.com/aws/aws-lambda-go/events"

// Effect is the outcome of an authorization decision.
type Effect string

const (
	Allow Effect = "Allow"
	Deny  Effect = "Deny"
)

const (
	policyVersion = "2012-10-17"
	invokeAction  = "execute-api:Invoke"
)

// BuildPolicy grants or denies invoking exactly resourceArn and nothing else.
func BuildPolicy(resourceArn string, effect Effect) events.APIGatewayCustomAuthorizerPolicy {
	return events.APIGatewayCustomAuthorizerPolicy{
		Version: policyVersion,
		Statement: []events.IAMPolicyStatement{
			{
				Action:   []string{invokeAction},
				Effect:   string(effect),
				Resource: []string{resourceArn},
			},
		},
	}
}
