package persona

import "github.com/honeygrid/scamtrap/internal/patterns"

// categoryPriority orders verdict categories by how specifically they
// dictate the persona's next move. The first category present wins.
var categoryPriority = []string{
	patterns.CategoryCredential,
	patterns.CategoryLottery,
	patterns.CategoryPayment,
	patterns.CategoryThreat,
	patterns.CategoryKYC,
	patterns.CategoryInvestment,
	patterns.CategoryImpersonation,
	patterns.CategoryUrgency,
	patterns.CategoryLinkBait,
}

// fallbackTemplates are the canned replies used when generation is
// unavailable. They keep the engagement alive and ask for exactly one
// thing, in the persona's voice. None of them contains anything the
// self-leak guard would flag.
var fallbackTemplates = map[string][]string{
	patterns.CategoryCredential: {
		"Beta OTP kya hota hai? Mujhe samajh nahi aaya... aap phone karke batao na.",
		"Yeh PIN wala kaam mujhse nahi hoga beta, aap apna number do, mera beta baat karega.",
		"Password? Woh toh mere bete ne set kiya tha... aap kaun se bank se ho?",
	},
	patterns.CategoryLottery: {
		"Sach mein?? Itna paisa?! Lekin maine toh koi lottery nahi kheli beta...",
		"Haan ji? Prize mila hai? Kaise claim karna hota hai, batao na step by step.",
		"Arre wah! Par mujhe vishwas nahi ho raha... aapka number do, main baad mein call karungi.",
	},
	patterns.CategoryPayment: {
		"Paise bhejne hain? Kahan bhejna hai beta? UPI ID do, main apne bank se puchwa lungi.",
		"Achha theek hai, par pehle aap apna account number do, main likh leti hu.",
		"Beta mujhe yeh online payment samajh nahi aata... aap apna number do na.",
	},
	patterns.CategoryThreat: {
		"Hai ram! Account block ho jayega?? Ab main kya karu beta, aap batao...",
		"Police?? Maine toh kuch nahi kiya ji... aap kaun bol rahe ho, naam batao apna.",
	},
	patterns.CategoryKYC: {
		"KYC? Yeh kya hota hai beta? Bank jana padega kya?",
		"Verify karna hai? Theek hai par kaise karu... aap apna number do, beta ko puchti hu.",
	},
	patterns.CategoryInvestment: {
		"Double paisa?! Sach mein? Mera beta bolta hai aisi cheezo se door raho...",
		"Investment ka mujhe kuch nahi pata beta, aap detail bhejo, main dikhaungi bete ko.",
	},
	patterns.CategoryImpersonation: {
		"Aap bank se bol rahe ho? Konsi branch se beta? Main wahi aati hu kal.",
	},
	patterns.CategoryUrgency: {
		"Itni jaldi?? Ruko beta, main chashma dhund ke aati hu...",
		"Haan haan abhi karti hu... par pehle batao yeh sab kaise karna hai?",
	},
	patterns.CategoryLinkBait: {
		"Link khula nahi beta, phone mein kuch aa raha hai bas... dobara bhejo na.",
	},
}

var genericFallbacks = []string{
	"Achha achha... thoda samajh nahi aaya, phir se batao beta?",
	"Haan ji? Network thoda kharab hai, aap dobara bolo na.",
	"Ek minute beta, chashma lagake padhti hu... aap kya keh rahe the?",
}

// fallbackReply picks a deterministic canned reply for the verdict's
// dominant category, rotating by scammer turn count so repeated failures
// do not repeat the exact same line.
func fallbackReply(categories []string, turn int) string {
	for _, name := range categoryPriority {
		if !contains(categories, name) {
			continue
		}
		lines := fallbackTemplates[name]
		if len(lines) > 0 {
			return lines[turn%len(lines)]
		}
	}
	return genericFallbacks[turn%len(genericFallbacks)]
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
