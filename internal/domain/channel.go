package domain

// Channel is the closed set of logical routing destinations for an
// opportunity, per spec.md §3/§4.7.
type Channel string

const (
	ChannelSports        Channel = "sports"
	ChannelWeather       Channel = "weather"
	ChannelEconomics     Channel = "economics"
	ChannelMentions      Channel = "mentions"
	ChannelEntertainment Channel = "entertainment"
	ChannelHealth        Channel = "health"
	ChannelPolitics      Channel = "politics"
	ChannelCrypto        Channel = "crypto"
	ChannelDigest        Channel = "digest"
	ChannelStatus        Channel = "status"
)
